package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/chatsync/internal/app"
	"github.com/ehrlich-b/chatsync/internal/auth"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/config"
	"github.com/ehrlich-b/chatsync/internal/events"
	"github.com/ehrlich-b/chatsync/internal/logger"
	"github.com/ehrlich-b/chatsync/internal/loop"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
	"github.com/ehrlich-b/chatsync/internal/widget"
)

const drainTimeout = 2 * time.Second

// session is one running widget with everything it needs around it.
type session struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend sessionstore.Backend
	loop    *loop.Loop
	bus     *gochannel.GoChannel
	app     *app.Context
	widget  *widget.Widget
}

func openSession(cfg *config.Config) (*session, error) {
	log := logger.Init(cfg.Logging.Level, cfg.Logging.File)

	if cfg.Storage.Backend == config.BackendFile || cfg.Storage.Backend == config.BackendSQLite {
		if err := config.EnsureConfigDir(filepath.Dir(cfg.Storage.Path)); err != nil {
			return nil, errors.Wrap(err, "create storage dir")
		}
	}
	backend, err := sessionstore.OpenBackend(cfg.Storage, sessionstore.KeysFor(cfg.KeyPrefix, cfg.WebsiteID))
	if err != nil {
		return nil, errors.Wrap(err, "open session storage")
	}
	sockURL, err := channel.SocketURL(cfg.APIURL, cfg.WebsiteID)
	if err != nil {
		backend.Close()
		return nil, err
	}

	bus := events.NewGoChannel(log)
	sink := events.NewWatermillSink(bus, log)
	lp := loop.New(0)
	actx := app.Open(*cfg, log, lp, backend, sink)

	dial := channel.NewDialer(sockURL, cfg.Reconnect.MaxAttempts, cfg.Reconnect.Interval, logger.Component(log, "channel"))
	login := auth.HTTPLogin(&http.Client{Timeout: cfg.Timeouts.HTTP}, cfg.APIURL, cfg.WebsiteID)

	return &session{
		cfg:     cfg,
		log:     log,
		backend: backend,
		loop:    lp,
		bus:     bus,
		app:     actx,
		widget:  widget.New(actx, dial, login, sink),
	}, nil
}

// run drives the loop and the session file watch while fn runs. When fn returns
// the widget is closed and drained before the loop stops.
func (s *session) run(ctx context.Context, fn func(ctx context.Context) error) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.loop.Run(loopCtx)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	if fb, ok := sessionstore.FileOf(s.backend); ok {
		g.Go(func() error {
			if err := fb.Watch(gctx, s.widget.Resync); err != nil {
				s.log.Warn().Err(err).Msg("session file watch stopped")
			}
			return nil
		})
	}
	err := g.Wait()
	cancel()

	s.widget.Close()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	if derr := s.loop.Call(drainCtx, func() {}); derr != nil {
		s.log.Warn().Err(derr).Msg("drain loop")
	}
	drainCancel()
	stopLoop()
	<-loopDone

	if cerr := s.bus.Close(); cerr != nil {
		s.log.Debug().Err(cerr).Msg("close bus")
	}
	if cerr := s.app.Store.Close(); cerr != nil {
		s.log.Warn().Err(cerr).Msg("close session storage")
	}
	return err
}
