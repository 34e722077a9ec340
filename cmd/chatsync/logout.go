package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/chatsync/internal/conn"
	"github.com/ehrlich-b/chatsync/internal/events"
	"github.com/ehrlich-b/chatsync/internal/widget"
)

func logoutCmd() *cobra.Command {
	var offlineFlag bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session and tell the server",
		Long:  "Marks the session logged out locally, then notifies the server if it can be reached in time.",
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
			return s.run(cmd.Context(), func(ctx context.Context) error {
				if err := logout(ctx, s, !offlineFlag); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offlineFlag, "offline", false, "skip the server notification")
	return cmd
}

// logout waits up to the connect timeout for the channel, logs out, then waits
// for the server's answer or the logout timeout.
func logout(ctx context.Context, s *session, online bool) error {
	states, err := s.bus.Subscribe(ctx, events.TopicState)
	if err != nil {
		return errors.Wrap(err, "subscribe state")
	}

	if online {
		s.widget.Start()
		reached := waitState(ctx, states, s.cfg.Timeouts.Connect, func(st widget.State) bool {
			return st.Connection.StatusName == conn.StatusConnected.String()
		})
		if !reached {
			s.log.Info().Msg("server not reached, logging out locally")
		}
	}
	s.widget.Logout()
	waitState(ctx, states, s.cfg.Timeouts.Logout+time.Second, func(st widget.State) bool {
		return !st.Session.IsLoggingOut && !st.Session.IsAuthenticated
	})
	return nil
}

func waitState(ctx context.Context, states <-chan *message.Message, limit time.Duration, done func(widget.State) bool) bool {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case msg, ok := <-states:
			if !ok {
				return false
			}
			st, err := decodeAck(msg, events.DecodeState)
			if err != nil {
				continue
			}
			if done(st) {
				return true
			}
		}
	}
}
