package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

func (a *API) GetPreferences(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	prefs, err := a.registry.Preferences().Load(r.Context(), id.userID, id.userType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *API) PutPreferences(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var prefs model.Preferences
	if err := decodeBody(r, &prefs, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	saved, err := a.registry.Preferences().Save(r.Context(), id.userID, id.userType, prefs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// StreamPreferences pushes the current preferences and every later change as server-sent
// events named "preferences".
func (a *API) StreamPreferences(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	store := a.registry.Preferences()
	updates, cancel := store.Bus().Subscribe(id.userID)
	defer cancel()

	current, err := store.Load(r.Context(), id.userID, id.userType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, current); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case prefs, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, prefs); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, prefs model.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: preferences\ndata: %s\n\n", data)
	return err
}
