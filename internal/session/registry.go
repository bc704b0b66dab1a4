package session

import (
	"log"
	"sync"
	"time"
)

// Timers is the shared timer service keyed by session. Arm replaces any
// earlier timer for the key.
type Timers interface {
	Arm(key string, at time.Time)
	Disarm(key string)
}

// Deps holds the collaborators a registry injects into each actor.
type Deps struct {
	Store  func(key string) Storage // scoped storage handle per key
	Timers Timers
	LLM    Completer
	Prompt string                       // system prompt override, synthesized per model call
	Now    func() time.Time             // injectable clock, defaults to time.Now
	OnDue  func(key string, count int)  // fired after an alarm promotes reminders
}

// Registry maps an opaque user key to its one session actor, created lazily
// on first use. Wire the timer service's OnFire to HandleAlarm.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps
}

func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Prompt == "" {
		deps.Prompt = defaultSystemPrompt
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

// Get resolves the actor for a key, creating it on first access.
func (r *Registry) Get(key string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s
	}

	s = &Session{
		key:    key,
		store:  r.deps.Store(key),
		timer:  &scopedTimer{timers: r.deps.Timers, key: key},
		llm:    r.deps.LLM,
		prompt: r.deps.Prompt,
		now:    r.deps.Now,
		onDue:  r.deps.OnDue,
	}
	r.sessions[key] = s
	return s
}

// HandleAlarm dispatches a timer fire into the key's actor, where it is
// serialized like any other operation.
func (r *Registry) HandleAlarm(key string) {
	r.Get(key).handleAlarm()
}

// Restore warms the given sessions and re-arms their timers from persisted
// reminders. Called once at boot with the store's known session ids.
func (r *Registry) Restore(keys []string) {
	for _, key := range keys {
		if err := r.Get(key).rehydrate(); err != nil {
			log.Printf("[session] restore %s: %v", key, err)
		}
	}
}

type scopedTimer struct {
	timers Timers
	key    string
}

func (t *scopedTimer) Arm(at time.Time) { t.timers.Arm(t.key, at) }
func (t *scopedTimer) Disarm()          { t.timers.Disarm(t.key) }
