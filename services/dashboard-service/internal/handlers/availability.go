package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type blockRequest struct {
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Kind      string    `json:"kind"`
	IsFullDay bool      `json:"is_full_day"`
	Reason    string    `json:"reason"`
}

type listBlocksResponse struct {
	Blocks   []model.Block `json:"blocks"`
	Degraded bool          `json:"degraded,omitempty"`
}

func (a *API) ListBlocks(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	from, err := parseTimeParam(r, "from", true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to", true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !to.After(from) {
		a.writeError(w, r, model.Invalid("list availability", "to must be after from"))
		return
	}

	blocks, degraded, err := a.registry.Blocks().List(r.Context(), id.userID, availability.Window{Start: from, End: to})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []model.Block{}
	}
	writeJSON(w, http.StatusOK, listBlocksResponse{Blocks: blocks, Degraded: degraded})
}

// CreateBlock widens full-day blocks in the owner's preference timezone.
func (a *API) CreateBlock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var req blockRequest
	if err := decodeBody(r, &req, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	kind := model.BlockKind(req.Kind)
	if parsed, ok := model.ParseBlockKind(req.Kind); ok {
		kind = parsed
	}
	block := model.Block{
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Kind:      kind,
		IsFullDay: req.IsFullDay,
		Reason:    req.Reason,
	}

	store := a.registry.Preferences()
	prefs, ok := store.Peek(r.Context(), id.userID)
	if !ok {
		var err error
		if prefs, err = store.Load(r.Context(), id.userID, id.userType); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	created, err := a.registry.Blocks().Create(r.Context(), id.userID, block, prefs.Location())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if err := a.registry.Blocks().Delete(r.Context(), id.userID, chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
