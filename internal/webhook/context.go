// Package webhook is the request layer: thin chi HTTP handlers that decode
// the voice agent's JSON contract, resolve a CoreContext per request from
// the dialed number, enforce the wall-clock deadline, and call into the
// matcher, availability engine, and booking coordinator. Voice-friendly
// error text is produced here, not inside the core components.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinicvoice-core/internal/availability"
	"github.com/wolfman30/clinicvoice-core/internal/booking"
	"github.com/wolfman30/clinicvoice-core/internal/cache"
	"github.com/wolfman30/clinicvoice-core/internal/clinic"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/observability/metrics"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
	"github.com/wolfman30/clinicvoice-core/internal/store"
	"github.com/wolfman30/clinicvoice-core/internal/tenancy"
	"github.com/wolfman30/clinicvoice-core/internal/timeutil"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// CoreContext is the explicit dependency bundle threaded through every
// handler instead of process-wide singletons: store pool, cache handles,
// the PMS client factory, clock, and config. One CoreContext instance backs
// the whole process; per-request clinic resolution happens on each call.
type CoreContext struct {
	Catalog       *store.CatalogRepository
	ClinicConfig  *clinic.Store
	Engine        *availability.Engine
	Coordinator   *booking.Coordinator
	BookingCtx    *cache.BookingContextCache
	PatientCache  *cache.PatientCache
	ServiceMatch  *cache.ServiceMatchCache
	Stats         *cache.StatsRecorder
	PMSFactory    *pmsclient.Factory
	Metrics       *metrics.CoreMetrics
	Logger        *logging.Logger
	Clock         func() time.Time
	Deadline      time.Duration
}

func (c *CoreContext) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// resolvedClinic bundles the per-request tenant state every handler needs
// after resolving dialedNumber: the clinic id, its timezone, and "now" in
// that timezone. Ctx carries the clinic id onward via internal/tenancy so
// every downstream repository/cache/PMS call can be traced back to a tenant
// without threading clinicID through each function signature by hand.
type resolvedClinic struct {
	Ctx      context.Context
	ClinicID ids.ClinicID
	Config   *clinic.Config
	Location *time.Location
	NowLocal time.Time
}

func (c *CoreContext) resolveClinic(ctx context.Context, dialedNumber string) (resolvedClinic, error) {
	if dialedNumber == "" {
		return resolvedClinic{}, errLocationRequired
	}
	clinicID, err := c.Catalog.ResolveClinicByDialedNumber(ctx, dialedNumber)
	if err != nil {
		return resolvedClinic{}, fmt.Errorf("%w: %v", errClinicNotFound, err)
	}
	ctx = tenancy.WithClinicID(ctx, clinicID)
	cfg, err := c.ClinicConfig.Get(ctx, clinicID)
	if err != nil {
		return resolvedClinic{}, fmt.Errorf("%w: %v", errClinicNotFound, err)
	}
	loc := timeutil.GetClinicTimezone(cfg, c.Logger)
	return resolvedClinic{
		Ctx:      ctx,
		ClinicID: clinicID,
		Config:   cfg,
		Location: loc,
		NowLocal: c.now().In(loc),
	}, nil
}
