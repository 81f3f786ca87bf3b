package webhook

import (
	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// Handler serves the voice agent's entire booking contract: every route in
// Routes shares one CoreContext, so one clinic-resolution path and one
// error taxonomy back every operation.
type Handler struct {
	core   *CoreContext
	logger *logging.Logger
}

// NewHandler creates the webhook request layer over core.
func NewHandler(core *CoreContext) *Handler {
	logger := core.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{core: core, logger: logger}
}

// Routes returns a chi router mounted at /webhook. Callers are expected to
// wrap it with API-key auth and a request-scoped deadline.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/resolve-location", h.ResolveLocation)
	r.Post("/confirm-location", h.ConfirmLocation)
	r.Post("/practitioner-services", h.GetPractitionerServices)
	r.Post("/practitioner-info", h.GetPractitionerInfo)
	r.Post("/location-practitioners", h.GetLocationPractitioners)
	r.Post("/available-practitioners", h.GetAvailablePractitioners)
	r.Post("/check-availability", h.CheckAvailability)
	r.Post("/find-next-available", h.FindNextAvailable)
	r.Post("/book", h.Book)
	r.Post("/reschedule", h.Reschedule)
	r.Post("/cancel", h.Cancel)
	return r
}
