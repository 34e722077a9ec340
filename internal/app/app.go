// Package app carries what every component needs, created once per widget and
// passed to each constructor.
package app

import (
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/config"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/logger"
	"github.com/ehrlich-b/chatsync/internal/loop"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
)

// Context is shared by every component of one widget. It is only touched on the loop.
type Context struct {
	Config config.Config
	Log    zerolog.Logger
	Sched  loop.Scheduler
	Store  *sessionstore.Store
	Text   l10n.Catalog
	Errors chaterr.Reporter

	watchers []func()
	dirty    bool
}

func New(cfg config.Config, log zerolog.Logger, sched loop.Scheduler, store *sessionstore.Store, errs chaterr.Reporter) *Context {
	if errs == nil {
		errs = chaterr.ReporterFunc(func(*chaterr.Error) {})
	}
	return &Context{
		Config: cfg,
		Log:    log,
		Sched:  sched,
		Store:  store,
		Text:   l10n.New(cfg.Locale),
		Errors: errs,
	}
}

// Open builds a context whose session store runs over b. The first backend
// failure is reported as a storage error and the store carries on in memory.
func Open(cfg config.Config, log zerolog.Logger, sched loop.Scheduler, b sessionstore.Backend, errs chaterr.Reporter) *Context {
	c := New(cfg, log, sched, nil, errs)
	c.Store = sessionstore.New(b, sessionstore.KeysFor(cfg.KeyPrefix, cfg.WebsiteID),
		sessionstore.WithLogger(c.Logger("sessionstore")),
		sessionstore.WithClock(sched.Now),
		sessionstore.WithFailureHandler(func(err error) {
			c.Fail(chaterr.Storage, l10n.ErrStorage, err)
		}),
	)
	return c
}

// Logger returns a child logger for one component.
func (c *Context) Logger(component string) zerolog.Logger {
	return logger.Component(c.Log, component)
}

// Fail builds a localized error and hands it to the reporter.
func (c *Context) Fail(kind chaterr.Kind, key l10n.Key, cause error, args ...any) *chaterr.Error {
	err := chaterr.Wrap(cause, kind, string(key), c.Text.T(key, args...))
	c.Errors.Report(err)
	return err
}

// Report surfaces a message that came from the server verbatim.
func (c *Context) Report(kind chaterr.Kind, code, message string) *chaterr.Error {
	err := chaterr.New(kind, code, message)
	c.Errors.Report(err)
	return err
}

// OnChange registers fn to run after state owned by any component changed.
func (c *Context) OnChange(fn func()) { c.watchers = append(c.watchers, fn) }

// Changed marks state dirty. Watchers run once per loop turn, after the handler
// that made the change returns.
func (c *Context) Changed() {
	if c.dirty || len(c.watchers) == 0 {
		return
	}
	c.dirty = true
	c.Sched.Post(func() {
		c.dirty = false
		for _, fn := range c.watchers {
			fn()
		}
	})
}
