package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corvidlabs/plannerd/internal/config"
	"github.com/corvidlabs/plannerd/internal/model"
)

// stubCompleter stands in for the model pipeline.
type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, msgs []model.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestGateway(t *testing.T, completer *stubCompleter) *Gateway {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "test.db")

	g, err := NewWithOptions(cfg, Options{Completer: completer})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	t.Cleanup(func() {
		g.timers.Close()
		g.hub.Close()
		_ = g.store.Close()
	})
	return g
}

func doJSON(t *testing.T, g *Gateway, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	g.server.Handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("%s %s: invalid response json: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec.Code, decoded
}

func TestCreateAndListReminders(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{})

	at := time.Now().Add(time.Hour).UnixMilli()
	status, resp := doJSON(t, g, "POST", "/sessions/alice/reminders",
		fmt.Sprintf(`{"text":"Call Alice","at":%d}`, at))
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", status, resp)
	}
	if resp["ok"] != true {
		t.Errorf("ok = %v, want true", resp["ok"])
	}
	reminder, _ := resp["reminder"].(map[string]any)
	if reminder["text"] != "Call Alice" {
		t.Errorf("reminder = %v", resp["reminder"])
	}

	status, resp = doJSON(t, g, "GET", "/sessions/alice/reminders", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	reminders, _ := resp["reminders"].([]any)
	if len(reminders) != 1 {
		t.Errorf("reminders = %v, want 1 entry", resp["reminders"])
	}
}

func TestCreateReminder_BadInput(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{})

	tests := []struct {
		name string
		body string
	}{
		{"missing text", fmt.Sprintf(`{"at":%d}`, time.Now().Add(time.Hour).UnixMilli())},
		{"missing at", `{"text":"x"}`},
		{"unparseable at", `{"text":"x","at":"whenever"}`},
		{"past at", fmt.Sprintf(`{"text":"x","at":%d}`, time.Now().Add(-time.Hour).UnixMilli())},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		status, resp := doJSON(t, g, "POST", "/sessions/alice/reminders", tt.body)
		if status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%v)", tt.name, status, resp)
		}
	}
}

func TestUpdateAndDeleteReminder(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{})

	at := time.Now().Add(time.Hour).UnixMilli()
	_, resp := doJSON(t, g, "POST", "/sessions/alice/reminders",
		fmt.Sprintf(`{"text":"original","at":%d}`, at))
	reminder := resp["reminder"].(map[string]any)
	id := reminder["id"].(string)

	status, resp := doJSON(t, g, "PATCH", "/sessions/alice/reminders/"+id, `{"text":"renamed"}`)
	if status != http.StatusOK {
		t.Fatalf("update status = %d (%v)", status, resp)
	}
	updated := resp["reminder"].(map[string]any)
	if updated["text"] != "renamed" {
		t.Errorf("text = %v, want renamed", updated["text"])
	}

	status, _ = doJSON(t, g, "PATCH", "/sessions/alice/reminders/nonexistent", `{"text":"x"}`)
	if status != http.StatusNotFound {
		t.Errorf("update unknown id: status = %d, want 404", status)
	}

	status, resp = doJSON(t, g, "DELETE", "/sessions/alice/reminders/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	if resp["deleted"] != id {
		t.Errorf("deleted = %v, want %s", resp["deleted"], id)
	}

	status, _ = doJSON(t, g, "DELETE", "/sessions/alice/reminders/"+id, "")
	if status != http.StatusNotFound {
		t.Errorf("delete again: status = %d, want 404", status)
	}
}

func TestReminderFiresAndPollDue(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{})

	at := time.Now().Add(50 * time.Millisecond).UnixMilli()
	status, resp := doJSON(t, g, "POST", "/sessions/alice/reminders",
		fmt.Sprintf(`{"text":"soon","at":%d}`, at))
	if status != http.StatusOK {
		t.Fatalf("create status = %d (%v)", status, resp)
	}

	// Wait for the armed timer to promote the reminder.
	deadline := time.Now().Add(2 * time.Second)
	var due []any
	for time.Now().Before(deadline) {
		_, resp = doJSON(t, g, "GET", "/sessions/alice/due?ack=false", "")
		due, _ = resp["due"].([]any)
		if len(due) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(due) != 1 {
		t.Fatalf("due = %v, want 1 notification", resp["due"])
	}

	// The reminder left the pending list.
	_, resp = doJSON(t, g, "GET", "/sessions/alice/reminders", "")
	if reminders, _ := resp["reminders"].([]any); len(reminders) != 0 {
		t.Errorf("reminders = %v, want empty after fire", resp["reminders"])
	}

	// Ack consumes the queue.
	_, resp = doJSON(t, g, "GET", "/sessions/alice/due", "")
	if due, _ := resp["due"].([]any); len(due) != 1 {
		t.Fatalf("ack poll due = %v, want 1", resp["due"])
	}
	_, resp = doJSON(t, g, "GET", "/sessions/alice/due", "")
	if due, _ := resp["due"].([]any); len(due) != 0 {
		t.Errorf("second poll due = %v, want empty", resp["due"])
	}
}

func TestChat(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{reply: "sounds like a plan"})

	status, resp := doJSON(t, g, "POST", "/sessions/alice/chat", `{"input":"Plan my week"}`)
	if status != http.StatusOK {
		t.Fatalf("chat status = %d (%v)", status, resp)
	}
	if resp["response"] != "sounds like a plan" {
		t.Errorf("response = %v", resp["response"])
	}

	status, resp = doJSON(t, g, "GET", "/sessions/alice/memory", "")
	if status != http.StatusOK {
		t.Fatalf("memory status = %d", status)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestChat_UpstreamFailure(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{err: errors.New("every candidate down")})

	status, resp := doJSON(t, g, "POST", "/sessions/alice/chat", `{"input":"hello"}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (%v)", status, resp)
	}
	if msg, _ := resp["error"].(string); !strings.Contains(msg, "every candidate down") {
		t.Errorf("error = %q, should carry the cause", msg)
	}
}

func TestChat_EmptyInput(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{reply: "x"})

	status, _ := doJSON(t, g, "POST", "/sessions/alice/chat", `{"input":"  "}`)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestPlans(t *testing.T) {
	g := newTestGateway(t, &stubCompleter{})

	status, resp := doJSON(t, g, "PUT", "/sessions/alice/plans/week", `{"focus":"ship"}`)
	if status != http.StatusOK {
		t.Fatalf("put plan status = %d (%v)", status, resp)
	}

	status, resp = doJSON(t, g, "GET", "/sessions/alice/plans", "")
	if status != http.StatusOK {
		t.Fatalf("list plans status = %d", status)
	}
	plans, _ := resp["plans"].(map[string]any)
	if _, ok := plans["week"]; !ok {
		t.Errorf("plans = %v, want week entry", resp["plans"])
	}
}

func TestRestartRearmsPersistedReminders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "test.db")

	g1, err := NewWithOptions(cfg, Options{Completer: &stubCompleter{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	at := time.Now().Add(100 * time.Millisecond).UnixMilli()
	status, resp := doJSON(t, g1, "POST", "/sessions/alice/reminders",
		fmt.Sprintf(`{"text":"survive restart","at":%d}`, at))
	if status != http.StatusOK {
		t.Fatalf("create status = %d (%v)", status, resp)
	}

	// Simulate a restart before the reminder fires.
	g1.timers.Close()
	g1.hub.Close()
	if err := g1.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	g2, err := NewWithOptions(cfg, Options{Completer: &stubCompleter{}})
	if err != nil {
		t.Fatalf("restart NewWithOptions error: %v", err)
	}
	t.Cleanup(func() {
		g2.timers.Close()
		g2.hub.Close()
		_ = g2.store.Close()
	})
	if err := g2.Restore(); err != nil {
		t.Fatalf("Restore error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, resp = doJSON(t, g2, "GET", "/sessions/alice/due?ack=false", "")
		if due, _ := resp["due"].([]any); len(due) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("restored reminder never fired")
}
