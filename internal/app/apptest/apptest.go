// Package apptest builds an app.Context wired to in-memory storage and the
// deterministic scheduler.
package apptest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/config"
	"github.com/ehrlich-b/chatsync/internal/loop/looptest"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
)

const WebsiteID = "W"

// Errors records everything reported through the context.
type Errors struct {
	List []*chaterr.Error
}

func (e *Errors) Report(err *chaterr.Error) { e.List = append(e.List, err) }

// Codes lists the reported codes in order.
func (e *Errors) Codes() []string {
	out := make([]string, len(e.List))
	for i, err := range e.List {
		out[i] = err.Code
	}
	return out
}

func (e *Errors) Reset() { e.List = nil }

type Env struct {
	App     *app.Context
	Sched   *looptest.Scheduler
	Backend *sessionstore.MemoryBackend
	Errors  *Errors
}

// Config is the stock configuration pointed at a fake server.
func Config() config.Config {
	cfg := config.Defaults()
	cfg.APIURL = "http://chat.test"
	cfg.WebsiteID = WebsiteID
	cfg.Locale = "en"
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

// New builds an Env. seed is written to storage before the store is created.
func New(seed map[string]string) *Env {
	return NewWithConfig(Config(), seed)
}

func NewWithConfig(cfg config.Config, seed map[string]string) *Env {
	backend := sessionstore.NewMemoryBackend()
	for k, v := range seed {
		backend.Set(context.Background(), k, v)
	}
	return NewWithBackend(cfg, backend)
}

// NewWithBackend builds an Env over any backend. Backend is only set when b is a
// *sessionstore.MemoryBackend.
func NewWithBackend(cfg config.Config, b sessionstore.Backend) *Env {
	sched := looptest.New()
	errs := &Errors{}
	env := &Env{
		App:    app.Open(cfg, zerolog.Nop(), sched, b, errs),
		Sched:  sched,
		Errors: errs,
	}
	env.Backend, _ = b.(*sessionstore.MemoryBackend)
	return env
}

// Stored returns the raw persisted values.
func (e *Env) Stored() map[string]string { return e.Backend.Snapshot() }
