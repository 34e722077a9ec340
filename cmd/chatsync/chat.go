package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/chatsync/internal/events"
	"github.com/ehrlich-b/chatsync/internal/l10n"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Long:  "Opens the chat, restores the saved session and reads messages and /commands from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.run(ctx, func(ctx context.Context) error {
				return chatLoop(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func chatLoop(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	states, err := s.bus.Subscribe(ctx, events.TopicState)
	if err != nil {
		return errors.Wrap(err, "subscribe state")
	}
	errs, err := s.bus.Subscribe(ctx, events.TopicErrors)
	if err != nil {
		return errors.Wrap(err, "subscribe errors")
	}

	r := newRenderer(out)
	p := newPrompter(in, out)
	cmds := make(chan command)
	readErr := make(chan error, 1)
	go func() {
		for {
			c, err := p.next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case cmds <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.widget.Start()
	fmt.Fprintln(out, "type a message, or /help")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read input")
		case msg, ok := <-states:
			if !ok {
				return nil
			}
			if st, err := decodeAck(msg, events.DecodeState); err == nil {
				r.state(st)
			}
		case msg, ok := <-errs:
			if !ok {
				return nil
			}
			if e, err := decodeAck(msg, events.DecodeError); err == nil {
				r.error(e)
				if retryAfterFlag > 0 && givenUp(e) {
					s.widget.ReconnectAfter(retryAfterFlag)
					r.notef("retrying in %s", retryAfterFlag)
				}
			}
		case c := <-cmds:
			if c.kind == cmdQuit {
				return nil
			}
			dispatch(s, r, c)
		}
	}
}

func decodeAck[T any](msg *message.Message, decode func(*message.Message) (T, error)) (T, error) {
	defer msg.Ack()
	return decode(msg)
}

// givenUp reports whether the connection manager stopped trying on its own.
func givenUp(e events.ErrorPayload) bool {
	switch l10n.Key(e.Code) {
	case l10n.ErrConnectionLost, l10n.ErrConnectTimeout, l10n.ErrConnectFailed:
		return true
	}
	return false
}

func dispatch(s *session, r *renderer, c command) {
	w := s.widget
	switch c.kind {
	case cmdSend:
		w.SendMessage(c.text)
	case cmdLogin:
		w.Login(c.creds)
	case cmdSignup:
		w.Signup(c.creds)
	case cmdLogout:
		w.Logout()
	case cmdHuman:
		w.RequestHumanSupport()
	case cmdAI:
		w.CancelHumanSupport()
	case cmdReconnect:
		w.Reconnect()
	case cmdRate:
		id, ok := resolveMessage(r.last.Messages, c.id)
		if !ok {
			r.notef("no agent message to rate")
			return
		}
		w.RateMessage(id, c.rating)
	case cmdMode:
		pending := ""
		if r.last.Support.IsHumanSupportRequested {
			pending = " (human requested)"
		}
		r.notef("support mode: %s%s", r.last.Support.Mode, pending)
	case cmdHelp:
		fmt.Fprintln(r.out, helpText)
	case cmdInvalid:
		r.notef("%s", c.text)
	}
}
