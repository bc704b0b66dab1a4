package session

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/plannerd/internal/model"
)

const (
	// pastTolerance absorbs clock and transmission skew when validating a
	// reminder instant; it does not allow meaningfully past reminders.
	pastTolerance = 5 * time.Second

	// memoryLimit caps persisted conversation history at 20 turns.
	memoryLimit = 40

	// alarmRetryDelay re-arms after a failed alarm. The fired timer has
	// already cleared itself, so without this the pending reminders would
	// sit undelivered until an unrelated mutation re-armed the timer.
	alarmRetryDelay = 30 * time.Second
)

const defaultSystemPrompt = `You are a personal planning assistant. Help the user plan their day,
keep track of commitments, and think through upcoming tasks. Be concise.`

// Completer produces a reply for a message sequence, degrading through a
// model fallback chain internally.
type Completer interface {
	Complete(ctx context.Context, msgs []model.Message) (string, error)
}

// Session is the exclusive owner of one user's state. Every operation,
// including the alarm callback, locks the same mutex: the actor boundary is
// the lock.
type Session struct {
	key    string
	mu     sync.Mutex
	store  Storage
	timer  Timer
	llm    Completer
	prompt string
	now    func() time.Time
	onDue  func(key string, count int)
}

// Key returns the opaque user key this session belongs to.
func (s *Session) Key() string { return s.key }

// Memory returns the persisted conversation history.
func (s *Session) Memory() ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMemory()
}

// ListReminders returns pending reminders sorted ascending by due instant.
func (s *Session) ListReminders() ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadReminders()
	if err != nil {
		return nil, err
	}
	return sortedByAt(reminders), nil
}

// CreateReminder validates, assigns a fresh id, persists, and re-arms the
// timer. The instant must resolve to the future within pastTolerance.
func (s *Session) CreateReminder(text string, at time.Time) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, validationf("missing text")
	}
	if at.IsZero() {
		return nil, validationf("missing at")
	}
	if err := s.checkFuture(at); err != nil {
		return nil, err
	}

	reminders, err := s.loadReminders()
	if err != nil {
		return nil, err
	}

	r := Reminder{
		ID:   uuid.NewString(),
		At:   at.UnixMilli(),
		Text: text,
	}
	reminders = append(reminders, r)

	if err := s.store.Put(keyReminders, reminders); err != nil {
		return nil, err
	}
	s.rearm(reminders)
	return &r, nil
}

// UpdateReminder merges the provided fields into an existing reminder. A
// failed validation leaves the reminder and timer untouched.
func (s *Session) UpdateReminder(id string, text *string, at *time.Time) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadReminders()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range reminders {
		if reminders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &NotFoundError{ID: id}
	}

	if at != nil {
		if err := s.checkFuture(*at); err != nil {
			return nil, err
		}
	}
	if text != nil {
		if strings.TrimSpace(*text) == "" {
			return nil, validationf("missing text")
		}
		reminders[idx].Text = *text
	}
	if at != nil {
		reminders[idx].At = at.UnixMilli()
	}

	if err := s.store.Put(keyReminders, reminders); err != nil {
		return nil, err
	}
	s.rearm(reminders)
	r := reminders[idx]
	return &r, nil
}

// DeleteReminder removes a reminder and re-arms, which disarms the timer
// when it was the last one.
func (s *Session) DeleteReminder(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadReminders()
	if err != nil {
		return "", err
	}

	idx := -1
	for i := range reminders {
		if reminders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", &NotFoundError{ID: id}
	}

	reminders = append(reminders[:idx], reminders[idx+1:]...)
	if err := s.store.Put(keyReminders, reminders); err != nil {
		return "", err
	}
	s.rearm(reminders)
	return id, nil
}

// PollDue returns pending notifications. With ack they are consumed as a
// whole; without, the call is a side-effect-free peek.
func (s *Session) PollDue(ack bool) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications, err := s.loadNotifications()
	if err != nil {
		return nil, err
	}
	if ack && len(notifications) > 0 {
		if err := s.store.Put(keyNotifications, []Notification{}); err != nil {
			return nil, err
		}
	}
	return notifications, nil
}

// Chat appends the user turn, invokes the model pipeline with a transient
// system prompt, appends the reply, and persists the capped history.
func (s *Session) Chat(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(input) == "" {
		return "", validationf("missing input")
	}

	memory, err := s.loadMemory()
	if err != nil {
		return "", err
	}
	memory = append(memory, model.Message{Role: model.RoleUser, Content: input})

	prompt := make([]model.Message, 0, len(memory)+1)
	prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: s.prompt})
	prompt = append(prompt, memory...)

	reply, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", &UpstreamError{Cause: err}
	}

	memory = append(memory, model.Message{Role: model.RoleAssistant, Content: reply})
	if len(memory) > memoryLimit {
		memory = memory[len(memory)-memoryLimit:]
	}
	if err := s.store.Put(keyMemory, memory); err != nil {
		return "", err
	}
	return reply, nil
}

// PutPlan upserts a named structured plan. Plans are opaque to the actor.
func (s *Session) PutPlan(name string, plan json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		return validationf("missing plan name")
	}
	if len(plan) == 0 {
		return validationf("missing plan body")
	}

	plans := map[string]json.RawMessage{}
	if _, err := s.store.Get(keyPlans, &plans); err != nil {
		return err
	}
	plans[name] = plan
	return s.store.Put(keyPlans, plans)
}

// Plans returns the stored plans by name.
func (s *Session) Plans() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := map[string]json.RawMessage{}
	if _, err := s.store.Get(keyPlans, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// handleAlarm is the timer callback: promote due reminders to the
// notification queue and re-arm for the next future one. This is the only
// path that moves items between the two collections.
func (s *Session) handleAlarm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadReminders()
	if err != nil {
		log.Printf("[session] %s alarm: load reminders: %v", s.key, err)
		s.timer.Arm(s.now().Add(alarmRetryDelay))
		return
	}

	due, future := splitDue(reminders, s.now())
	if len(due) == 0 {
		s.rearm(future)
		return
	}

	notifications, err := s.loadNotifications()
	if err != nil {
		log.Printf("[session] %s alarm: load notifications: %v", s.key, err)
		s.timer.Arm(s.now().Add(alarmRetryDelay))
		return
	}
	for _, r := range due {
		notifications = append(notifications, Notification(r))
	}

	if err := s.store.Put(keyNotifications, notifications); err != nil {
		log.Printf("[session] %s alarm: persist notifications: %v", s.key, err)
		s.timer.Arm(s.now().Add(alarmRetryDelay))
		return
	}
	if err := s.store.Put(keyReminders, future); err != nil {
		// Notifications already landed; the retry may promote the same
		// reminders again, and the ack cycle absorbs the duplicate.
		log.Printf("[session] %s alarm: persist reminders: %v", s.key, err)
		s.timer.Arm(s.now().Add(alarmRetryDelay))
		return
	}
	s.rearm(future)

	if s.onDue != nil {
		s.onDue(s.key, len(due))
	}
}

// rehydrate re-arms the timer from persisted reminders, used at boot.
func (s *Session) rehydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := s.loadReminders()
	if err != nil {
		return err
	}
	s.rearm(reminders)
	return nil
}

// rearm holds the single-timer invariant: armed at min(at), or disarmed
// when no reminders remain. Every mutation funnels through here.
func (s *Session) rearm(reminders []Reminder) {
	if at, ok := nextWake(reminders); ok {
		s.timer.Arm(at)
	} else {
		s.timer.Disarm()
	}
}

func (s *Session) checkFuture(at time.Time) error {
	if !at.After(s.now().Add(-pastTolerance)) {
		return validationf("at must be in the future")
	}
	return nil
}

func (s *Session) loadMemory() ([]model.Message, error) {
	memory := []model.Message{}
	if _, err := s.store.Get(keyMemory, &memory); err != nil {
		return nil, err
	}
	return memory, nil
}

func (s *Session) loadReminders() ([]Reminder, error) {
	reminders := []Reminder{}
	if _, err := s.store.Get(keyReminders, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

func (s *Session) loadNotifications() ([]Notification, error) {
	notifications := []Notification{}
	if _, err := s.store.Get(keyNotifications, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}
