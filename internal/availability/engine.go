package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicvoice-core/internal/cache"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
	"github.com/wolfman30/clinicvoice-core/internal/timeutil"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

const defaultScanDeadline = 25 * time.Second

// Engine answers the three availability questions. It owns no state of its
// own beyond its dependencies: everything session- or clinic-scoped is
// passed in on each call, per the CoreContext convention.
type Engine struct {
	cache    *cache.AvailabilityCache
	pms      *pmsclient.Factory
	schedule ScheduleSource
	rejected RejectedSlotSource
	failed   FailedAttemptSource
	clock    func() time.Time
	deadline time.Duration
	logger   *logging.Logger
	tracer   trace.Tracer
}

// Config bundles an Engine's dependencies.
type Config struct {
	Cache          *cache.AvailabilityCache
	PMSFactory     *pmsclient.Factory
	Schedule       ScheduleSource
	RejectedSlots  RejectedSlotSource
	FailedAttempts FailedAttemptSource
	ScanDeadline   time.Duration
	Logger         *logging.Logger
}

func New(cfg Config) *Engine {
	if cfg.ScanDeadline <= 0 {
		cfg.ScanDeadline = defaultScanDeadline
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Engine{
		cache:    cfg.Cache,
		pms:      cfg.PMSFactory,
		schedule: cfg.Schedule,
		rejected: cfg.RejectedSlots,
		failed:   cfg.FailedAttempts,
		clock:    time.Now,
		deadline: cfg.ScanDeadline,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("clinicvoice.internal.availability"),
	}
}

// FindSlotsOnDate answers question A: all slots on one date for one
// practitioner at one business.
func (e *Engine) FindSlotsOnDate(ctx context.Context, req QuestionARequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "availability.find_slots_on_date")
	defer span.End()

	if req.Date.IsZero() {
		return Result{}, ErrUseFindNextAvailable
	}

	triples, err := e.pruneSchedule(ctx, req.ClinicID, []triple{{
		PractitionerID: req.PractitionerID,
		BusinessID:     req.BusinessID,
		Date:           req.Date,
	}})
	if err != nil {
		return Result{}, err
	}

	slots, partial := e.scan(ctx, req.ClinicID, req.ServiceID, triples)
	return e.finalize(ctx, req.SessionID, req.ClinicID, slots, partial), nil
}

// FindEarliestSlot answers question B: the earliest slot within MaxDays for
// a practitioner or service, optionally scoped to a business.
func (e *Engine) FindEarliestSlot(ctx context.Context, req QuestionBRequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "availability.find_earliest_slot")
	defer span.End()

	candidateTriples := e.candidateTriplesForQuestionB(req)
	pruned, err := e.pruneSchedule(ctx, req.ClinicID, candidateTriples)
	if err != nil {
		return Result{}, err
	}

	windows := windowsFromTriples(pruned)
	viable := viableDaySet(pruned)
	slots, partial := e.scanWindows(ctx, req.ClinicID, req.ServiceID, windows, viable)
	result := e.finalize(ctx, req.SessionID, req.ClinicID, slots, partial)

	if len(result.Slots) > 1 {
		result.Slots = result.Slots[:1]
	}
	return result, nil
}

func (e *Engine) candidateTriplesForQuestionB(req QuestionBRequest) []triple {
	today := e.clock().Truncate(24 * time.Hour)
	maxDays := req.MaxDays
	if maxDays <= 0 {
		maxDays = 14
	}

	practitioners := req.Practitioners
	if len(practitioners) == 0 && req.PractitionerID != "" {
		practitioners = []ids.PractitionerID{req.PractitionerID}
	}

	var triples []triple
	for _, p := range practitioners {
		businesses := []ids.BusinessID{req.BusinessID}
		if req.BusinessID == "" {
			businesses = req.PractitionerBiz[p]
		}
		for _, b := range businesses {
			if b == "" {
				continue
			}
			for d := 0; d < maxDays; d++ {
				triples = append(triples, triple{
					PractitionerID: p,
					BusinessID:     b,
					Date:           today.AddDate(0, 0, d),
				})
			}
		}
	}
	return triples
}

// windowsFromTriples groups the unpruned (schedule-surviving) candidate days
// by (practitioner, business) and splits each pair's date range into ≤7-day
// windows via timeutil.SplitAvailabilitySpan, so the PMS fan-out issues one
// GetAvailableTimes call per window instead of one per day.
func windowsFromTriples(pruned []triple) []window {
	type pairKey struct {
		PractitionerID ids.PractitionerID
		BusinessID     ids.BusinessID
	}
	byPair := make(map[pairKey][]time.Time)
	var pairs []pairKey
	for _, t := range pruned {
		k := pairKey{t.PractitionerID, t.BusinessID}
		if _, seen := byPair[k]; !seen {
			pairs = append(pairs, k)
		}
		byPair[k] = append(byPair[k], t.Date)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].PractitionerID != pairs[j].PractitionerID {
			return pairs[i].PractitionerID < pairs[j].PractitionerID
		}
		return pairs[i].BusinessID < pairs[j].BusinessID
	})

	var windows []window
	for _, pair := range pairs {
		dates := byPair[pair]
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		for _, span := range timeutil.SplitAvailabilitySpan(dates[0], dates[len(dates)-1]) {
			windows = append(windows, window{
				PractitionerID: pair.PractitionerID,
				BusinessID:     pair.BusinessID,
				From:           span[0],
				To:             span[1],
			})
		}
	}
	return windows
}

// viableDaySet indexes the schedule-pruned triples for O(1) membership
// checks inside a window's date span.
func viableDaySet(pruned []triple) map[triple]bool {
	out := make(map[triple]bool, len(pruned))
	for _, t := range pruned {
		out[t] = true
	}
	return out
}

// FindPractitionersWithAvailability answers question C: which practitioners
// at a business have any slot on a date.
func (e *Engine) FindPractitionersWithAvailability(ctx context.Context, req QuestionCRequest) (map[ids.PractitionerID]Result, error) {
	ctx, span := e.tracer.Start(ctx, "availability.find_practitioners_with_availability")
	defer span.End()

	var triples []triple
	for _, p := range req.Practitioners {
		triples = append(triples, triple{PractitionerID: p, BusinessID: req.BusinessID, Date: req.Date})
	}
	pruned, err := e.pruneSchedule(ctx, req.ClinicID, triples)
	if err != nil {
		return nil, err
	}

	slots, partial := e.scan(ctx, req.ClinicID, "", pruned)

	byPractitioner := make(map[ids.PractitionerID][]Slot)
	for _, s := range slots {
		byPractitioner[s.PractitionerID] = append(byPractitioner[s.PractitionerID], s)
	}

	out := make(map[ids.PractitionerID]Result, len(byPractitioner))
	for _, p := range req.Practitioners {
		result := e.finalize(ctx, req.SessionID, req.ClinicID, byPractitioner[p], partial)
		if len(result.Slots) > 0 {
			out[p] = result
		}
	}
	return out, nil
}

// pruneSchedule drops triples the practitioner does not work, per the
// locally stored schedule. This runs before any PMS or cache call.
func (e *Engine) pruneSchedule(ctx context.Context, clinicID ids.ClinicID, triples []triple) ([]triple, error) {
	if e.schedule == nil {
		return triples, nil
	}
	var kept []triple
	for _, t := range triples {
		works, err := e.schedule.WorksOn(ctx, clinicID, t.PractitionerID, t.BusinessID, t.Date)
		if err != nil {
			e.logger.Warn("availability: schedule lookup failed, keeping triple conservatively", "error", err)
			kept = append(kept, t)
			continue
		}
		if works {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// scan implements the cache-first-with-authoritative-fallback read and the
// parallel fan-out bounded by a hard deadline. Results are aggregated in
// submission order for determinism.
func (e *Engine) scan(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID, triples []triple) ([]Slot, bool) {
	return e.fanOut(ctx, len(triples), func(scanCtx context.Context, i int) []Slot {
		return e.fetchTriple(scanCtx, clinicID, serviceID, triples[i])
	})
}

// scanWindows is scan's question-B counterpart: it fans out one PMS call per
// (practitioner, business, ≤7-day span) window instead of one per day, so a
// MaxDays search issues ⌈MaxDays/7⌉ calls per pair rather than MaxDays of
// them.
func (e *Engine) scanWindows(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID, windows []window, viable map[triple]bool) ([]Slot, bool) {
	return e.fanOut(ctx, len(windows), func(scanCtx context.Context, i int) []Slot {
		return e.fetchWindow(scanCtx, clinicID, serviceID, windows[i], viable)
	})
}

// fanOut runs n independent fetches concurrently, bounded by a hard
// wall-clock deadline, and aggregates their results in submission order for
// determinism. It reports partial=true when the deadline elapsed before
// every fetch completed.
func (e *Engine) fanOut(ctx context.Context, n int, fetch func(ctx context.Context, i int) []Slot) ([]Slot, bool) {
	if n == 0 {
		return nil, false
	}

	scanCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	results := make([][]Slot, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fetch(scanCtx, i)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	partial := false
	select {
	case <-done:
	case <-scanCtx.Done():
		partial = true
	}

	var out []Slot
	for _, s := range results {
		out = append(out, s...)
	}
	return out, partial
}

func (e *Engine) fetchTriple(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID, t triple) []Slot {
	key := cache.AvailabilityKey{ClinicID: clinicID, PractitionerID: t.PractitionerID, BusinessID: t.BusinessID, Date: t.Date}

	if e.cache != nil {
		if entry, found, err := e.cache.Get(ctx, key); err == nil && found {
			return toSlots(t, serviceID, entry.Slots)
		}
	}

	if e.pms == nil {
		return nil
	}
	client, err := e.pms.ForClinic(ctx, clinicID)
	if err != nil {
		e.logger.Warn("availability: failed to build pms client", "error", err)
		return nil
	}

	from := t.Date
	to := t.Date.Add(24 * time.Hour)
	rawSlots, err := client.GetAvailableTimes(ctx, pmsclient.AvailableTimesRequest{
		BusinessID:     t.BusinessID,
		PractitionerID: t.PractitionerID,
		ServiceID:      serviceID,
		From:           from,
		To:             to,
	})
	if err != nil {
		e.logger.Warn("availability: pms fetch failed", "error", err)
		return nil
	}

	if e.cache != nil {
		_ = e.cache.Set(ctx, cache.AvailabilityEntry{
			ClinicID:       clinicID,
			PractitionerID: t.PractitionerID,
			BusinessID:     t.BusinessID,
			Date:           t.Date,
			Slots:          rawSlots,
			ExpiresAt:      e.clock().Add(15 * time.Minute),
		})
	}
	return toSlots(t, serviceID, rawSlots)
}

// fetchWindow answers a window's slots cache-first: the PMS is called only
// if at least one viable day in the window is not already cached, and then
// exactly once for the whole span. The raw result is split back out per day
// so each day still gets its own cache entry and TTL, preserving the
// existing per-day cache scheme.
func (e *Engine) fetchWindow(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID, w window, viable map[triple]bool) []Slot {
	days := viableDaysIn(w, viable)
	if len(days) == 0 {
		return nil
	}

	if slots, ok := e.allCached(ctx, clinicID, serviceID, w, days); ok {
		return slots
	}

	if e.pms == nil {
		return nil
	}
	client, err := e.pms.ForClinic(ctx, clinicID)
	if err != nil {
		e.logger.Warn("availability: failed to build pms client", "error", err)
		return nil
	}

	rawSlots, err := client.GetAvailableTimes(ctx, pmsclient.AvailableTimesRequest{
		BusinessID:     w.BusinessID,
		PractitionerID: w.PractitionerID,
		ServiceID:      serviceID,
		From:           w.From,
		To:             w.To.Add(24 * time.Hour),
	})
	if err != nil {
		e.logger.Warn("availability: pms fetch failed", "error", err)
		return nil
	}

	byDay := groupByDay(rawSlots)

	var out []Slot
	for _, d := range days {
		t := triple{PractitionerID: w.PractitionerID, BusinessID: w.BusinessID, Date: d}
		dayStarts := byDay[d]
		if e.cache != nil {
			_ = e.cache.Set(ctx, cache.AvailabilityEntry{
				ClinicID:       clinicID,
				PractitionerID: w.PractitionerID,
				BusinessID:     w.BusinessID,
				Date:           d,
				Slots:          dayStarts,
				ExpiresAt:      e.clock().Add(15 * time.Minute),
			})
		}
		out = append(out, toSlots(t, serviceID, dayStarts)...)
	}
	return out
}

// allCached returns the window's slots from cache and true only if every
// viable day within it is already a cache hit. A single miss falls back to
// one PMS call for the whole window rather than a per-day top-up, since
// that's the call the windowing redesign exists to avoid multiplying.
func (e *Engine) allCached(ctx context.Context, clinicID ids.ClinicID, serviceID ids.ServiceID, w window, days []time.Time) ([]Slot, bool) {
	if e.cache == nil {
		return nil, false
	}
	var out []Slot
	for _, d := range days {
		key := cache.AvailabilityKey{ClinicID: clinicID, PractitionerID: w.PractitionerID, BusinessID: w.BusinessID, Date: d}
		entry, found, err := e.cache.Get(ctx, key)
		if err != nil || !found {
			return nil, false
		}
		t := triple{PractitionerID: w.PractitionerID, BusinessID: w.BusinessID, Date: d}
		out = append(out, toSlots(t, serviceID, entry.Slots)...)
	}
	return out, true
}

// viableDaysIn lists, in order, the days within a window's span that
// survived schedule pruning.
func viableDaysIn(w window, viable map[triple]bool) []time.Time {
	var days []time.Time
	for d := w.From; !d.After(w.To); d = d.AddDate(0, 0, 1) {
		if viable[(triple{PractitionerID: w.PractitionerID, BusinessID: w.BusinessID, Date: d})] {
			days = append(days, d)
		}
	}
	return days
}

// groupByDay buckets a window-spanning PMS result by the UTC calendar day
// each start time falls on.
func groupByDay(starts []time.Time) map[time.Time][]time.Time {
	byDay := make(map[time.Time][]time.Time)
	for _, s := range starts {
		d := s.Truncate(24 * time.Hour)
		byDay[d] = append(byDay[d], s)
	}
	return byDay
}

func toSlots(t triple, serviceID ids.ServiceID, starts []time.Time) []Slot {
	slots := make([]Slot, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, Slot{
			PractitionerID: t.PractitionerID,
			BusinessID:     t.BusinessID,
			ServiceID:      serviceID,
			StartUTC:       s,
		})
	}
	return slots
}

// finalize applies the rejected-slot filter and sorts slots chronologically,
// flagging whether filtering (not true emptiness) produced an empty result.
func (e *Engine) finalize(ctx context.Context, sessionID ids.SessionID, clinicID ids.ClinicID, slots []Slot, partial bool) Result {
	hadSlotsBeforeFilter := len(slots) > 0

	kept := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if e.rejected != nil && e.rejected.IsRejected(ctx, sessionID, s.PractitionerID, s.BusinessID, s.StartUTC) {
			continue
		}
		if e.failed != nil && e.failed.IsRecentlyFailed(ctx, clinicID, s.PractitionerID, s.BusinessID, s.StartUTC) {
			continue
		}
		kept = append(kept, s)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].StartUTC.Before(kept[j].StartUTC) })

	return Result{
		Slots:           kept,
		Partial:         partial,
		FilteredToEmpty: hadSlotsBeforeFilter && len(kept) == 0,
	}
}
