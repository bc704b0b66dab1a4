package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/corvidlabs/plannerd/internal/model"
	"github.com/corvidlabs/plannerd/internal/session"
)

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{key}/memory", g.handleMemory)
	mux.HandleFunc("GET /sessions/{key}/reminders", g.handleListReminders)
	mux.HandleFunc("POST /sessions/{key}/reminders", g.handleCreateReminder)
	mux.HandleFunc("PATCH /sessions/{key}/reminders/{id}", g.handleUpdateReminder)
	mux.HandleFunc("DELETE /sessions/{key}/reminders/{id}", g.handleDeleteReminder)
	mux.HandleFunc("GET /sessions/{key}/due", g.handlePollDue)
	mux.HandleFunc("POST /sessions/{key}/chat", g.handleChat)
	mux.HandleFunc("PUT /sessions/{key}/plans/{name}", g.handlePutPlan)
	mux.HandleFunc("GET /sessions/{key}/plans", g.handleListPlans)
	mux.HandleFunc("GET /ws", g.hub.handleWS)
	return mux
}

func (g *Gateway) handleMemory(w http.ResponseWriter, r *http.Request) {
	s := g.registry.Get(r.PathValue("key"))
	memory, err := s.Memory()
	if err != nil {
		writeError(w, err)
		return
	}
	if memory == nil {
		memory = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memory": memory, "count": len(memory)})
}

func (g *Gateway) handleListReminders(w http.ResponseWriter, r *http.Request) {
	s := g.registry.Get(r.PathValue("key"))
	reminders, err := s.ListReminders()
	if err != nil {
		writeError(w, err)
		return
	}
	if reminders == nil {
		reminders = []session.Reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

type reminderRequest struct {
	Text *string         `json:"text"`
	At   json.RawMessage `json:"at"`
}

func (g *Gateway) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.Text == nil {
		writeBadRequest(w, "missing text")
		return
	}
	at, err := session.ParseInstant(req.At)
	if err != nil {
		writeError(w, err)
		return
	}

	s := g.registry.Get(r.PathValue("key"))
	reminder, err := s.CreateReminder(*req.Text, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reminder": reminder})
}

func (g *Gateway) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	var at *time.Time
	if len(req.At) > 0 && string(req.At) != "null" {
		parsed, err := session.ParseInstant(req.At)
		if err != nil {
			writeError(w, err)
			return
		}
		at = &parsed
	}

	s := g.registry.Get(r.PathValue("key"))
	reminder, err := s.UpdateReminder(r.PathValue("id"), req.Text, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reminder": reminder})
}

func (g *Gateway) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	s := g.registry.Get(r.PathValue("key"))
	deleted, err := s.DeleteReminder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}

func (g *Gateway) handlePollDue(w http.ResponseWriter, r *http.Request) {
	ack := true
	if v := r.URL.Query().Get("ack"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "invalid ack")
			return
		}
		ack = parsed
	}

	s := g.registry.Get(r.PathValue("key"))
	due, err := s.PollDue(ack)
	if err != nil {
		writeError(w, err)
		return
	}
	if due == nil {
		due = []session.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"due": due})
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	s := g.registry.Get(r.PathValue("key"))
	response, err := s.Chat(r.Context(), req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": response})
}

func (g *Gateway) handlePutPlan(w http.ResponseWriter, r *http.Request) {
	var plan json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	s := g.registry.Get(r.PathValue("key"))
	if err := s.PutPlan(r.PathValue("name"), plan); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (g *Gateway) handleListPlans(w http.ResponseWriter, r *http.Request) {
	s := g.registry.Get(r.PathValue("key"))
	plans, err := s.Plans()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] write response warning: %v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
}

// writeError maps the session error taxonomy onto HTTP statuses: validation
// 400, unknown id 404, upstream exhaustion 500. Storage failures also land
// on 500; the actor makes no partial progress without the store.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *session.ValidationError
		nf *session.NotFoundError
		ue *session.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Reason})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": nf.Error()})
	case errors.As(err, &ue):
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": ue.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}
