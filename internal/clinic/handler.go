package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"
)

// Handler serves the read-only admin surface over clinic config. It is not
// reachable by the voice agent; the webhook layer's API-key auth is
// intentionally separate from whatever guards these routes.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a clinic admin HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi router mounted at /admin/clinics.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{clinicID}/config", h.GetConfig)
	return r
}

// GetConfig returns the clinic's non-secret configuration.
// GET /admin/clinics/{clinicID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	clinicID := ids.ClinicID(chi.URLParam(r, "clinicID"))
	if clinicID == "" {
		http.Error(w, `{"error":"clinic_id required"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("clinic: failed to get config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("clinic: failed to encode config", "clinic_id", clinicID, "error", err)
	}
}
