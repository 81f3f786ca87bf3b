package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

const lockTTL = 2 * time.Minute

// Locker is a short-lived mutual-exclusion record keyed on (practitioner,
// start time), generalized from the teacher's Redis Set/Get value-cache
// pattern into an actual SETNX-with-TTL lock — the teacher never implements
// a lock itself, so this is adapted rather than copied.
type Locker struct {
	redis *redis.Client
}

func NewLocker(redisClient *redis.Client) *Locker {
	if redisClient == nil {
		panic("booking: redis client cannot be nil")
	}
	return &Locker{redis: redisClient}
}

func lockKey(practitionerID ids.PractitionerID, startUTC time.Time) string {
	return fmt.Sprintf("booklock:%s:%s", practitionerID, startUTC.UTC().Format(time.RFC3339))
}

// Acquire attempts to take the lock for (practitionerID, startUTC). It
// returns a release function and true on success; on contention it returns
// false immediately — callers must not block waiting for a booking lock,
// they must surface slot_taken instead.
func (l *Locker) Acquire(ctx context.Context, practitionerID ids.PractitionerID, startUTC time.Time) (release func(context.Context), ok bool, err error) {
	token := uuid.New().String()
	key := lockKey(practitionerID, startUTC)

	acquired, err := l.redis.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("booking: lock acquire failed: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func(releaseCtx context.Context) {
		l.releaseIfOwner(releaseCtx, key, token)
	}
	return release, true, nil
}

// releaseOwnerScript deletes the key only if the caller still owns it,
// avoiding a release-after-expiry race where a different session's lock
// would be deleted.
const releaseOwnerScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

func (l *Locker) releaseIfOwner(ctx context.Context, key, token string) {
	l.redis.Eval(ctx, releaseOwnerScript, []string{key}, token)
}
