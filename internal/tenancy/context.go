// Package tenancy propagates the active clinic id through a request's
// context, so handlers, repositories, and the matcher never need it threaded
// through every function signature.
package tenancy

import (
	"context"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
)

type ctxKey string

const clinicKey ctxKey = "clinicvoice.clinic_id"

// WithClinicID stores the clinic id in context.
func WithClinicID(ctx context.Context, clinicID ids.ClinicID) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (ids.ClinicID, bool) {
	val := ctx.Value(clinicKey)
	if val == nil {
		return "", false
	}
	clinicID, ok := val.(ids.ClinicID)
	return clinicID, ok && clinicID != ""
}
