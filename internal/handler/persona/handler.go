package persona

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/model/persona"
	"github.com/harborchat/companion/pkg/utils"
)

// Cascade removes everything owned by a persona when the persona goes away.
type Cascade interface {
	DeletePersonaData(ctx context.Context, personaID string) error
}

// Handler exposes persona CRUD over HTTP.
type Handler struct {
	personas persona.Store
	cascade  Cascade
	log      *zap.Logger
}

// New creates the persona handler. cascade may be nil.
func New(personas persona.Store, cascade Cascade, log *zap.Logger) *Handler {
	return &Handler{personas: personas, cascade: cascade, log: log}
}

// RegisterRoutes mounts persona routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleList)
	r.Get("/personas/{personaID}", h.handleGet)
	r.Post("/personas", h.handleCreate)
	r.Put("/personas/{personaID}", h.handleUpdate)
	r.Delete("/personas/{personaID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personaID")
	p, ok := h.personas.FindByID(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p persona.Persona
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = ""

	saved, err := h.personas.Save(r.Context(), p)
	if err != nil {
		h.respondSaveError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personaID")
	if _, ok := h.personas.FindByID(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}

	var p persona.Persona
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = id

	saved, err := h.personas.Save(r.Context(), p)
	if err != nil {
		h.respondSaveError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personaID")

	removed, err := h.personas.Delete(r.Context(), id)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}

	if h.cascade != nil {
		if err := h.cascade.DeletePersonaData(r.Context(), id); err != nil {
			// The persona itself is gone; orphaned data is logged, not surfaced.
			h.log.Warn("persona cascade cleanup failed", zap.String("persona", id), zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persona.ErrNameRequired),
		errors.Is(err, persona.ErrRelationshipRequired),
		errors.Is(err, persona.ErrPersonalityRequired),
		errors.Is(err, persona.ErrSpeechStyleRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
