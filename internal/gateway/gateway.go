// Package gateway hosts the session actors: it wires the durable store,
// timer service, and model pipeline into a registry, exposes the session
// operations over HTTP, and runs background maintenance.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/corvidlabs/plannerd/internal/bus"
	"github.com/corvidlabs/plannerd/internal/config"
	"github.com/corvidlabs/plannerd/internal/model"
	"github.com/corvidlabs/plannerd/internal/session"
	"github.com/corvidlabs/plannerd/internal/store"
	"github.com/corvidlabs/plannerd/internal/timer"
)

// janitorSchedule runs store maintenance daily at 03:30.
const janitorSchedule = "0 30 3 * * *"

// Options for creating a Gateway with custom collaborators in tests.
type Options struct {
	Completer  session.Completer
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg      *config.Config
	store    *store.Store
	timers   *timer.Service
	registry *session.Registry
	bus      *bus.EventBus
	hub      *wsHub
	cron     *rcron.Cron
	server   *http.Server

	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	st, err := store.NewStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	g.bus = bus.NewEventBus(config.DefaultBufSize)
	g.hub = newWSHub()
	g.timers = timer.NewService()

	completer := opts.Completer
	if completer == nil {
		completer = model.NewPipeline(model.NewClient(cfg), cfg.Agent.Model, cfg.Agent.FallbackModels)
	}

	g.registry = session.NewRegistry(session.Deps{
		Store:  func(key string) session.Storage { return st.Session(key) },
		Timers: g.timers,
		LLM:    completer,
		Prompt: cfg.Agent.SystemPrompt,
		OnDue: func(key string, count int) {
			g.bus.Publish(bus.DueEvent{Session: key, Count: count, Timestamp: time.Now()})
		},
	})
	g.timers.OnFire = g.registry.HandleAlarm

	g.cron = rcron.New(rcron.WithSeconds())
	if _, err := g.cron.AddFunc(janitorSchedule, func() {
		if err := g.store.Maintain(); err != nil {
			log.Printf("[gateway] store maintenance warning: %v", err)
		}
	}); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register janitor: %w", err)
	}

	g.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: g.routes(),
	}

	return g, nil
}

// Restore re-arms reminder timers for every session found in the store.
func (g *Gateway) Restore() error {
	ids, err := g.store.SessionIDs()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	g.registry.Restore(ids)
	if len(ids) > 0 {
		log.Printf("[gateway] restored %d sessions", len(ids))
	}
	return nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.Restore(); err != nil {
		log.Printf("[gateway] restore warning: %v", err)
	}

	g.cron.Start()
	go g.processLoop(ctx)

	go func() {
		log.Printf("[gateway] listening on %s", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
		}
	}()

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop relays due hints from the actors to connected clients.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case evt := <-g.bus.Due:
			g.hub.Broadcast(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[gateway] server shutdown warning: %v", err)
	}

	stopCtx := g.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[gateway] janitor stop timeout")
	}

	g.timers.Close()
	g.hub.Close()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
