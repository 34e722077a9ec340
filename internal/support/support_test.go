package support

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/chatsync/internal/app/apptest"
	"github.com/ehrlich-b/chatsync/internal/channel"
	"github.com/ehrlich-b/chatsync/internal/chat"
	"github.com/ehrlich-b/chatsync/internal/chaterr"
	"github.com/ehrlich-b/chatsync/internal/l10n"
	"github.com/ehrlich-b/chatsync/internal/sessionstore"
)

var modeKey = sessionstore.KeysFor("mirza", apptest.WebsiteID).SupportMode

type fakeChannel struct {
	connected bool
	sent      []channel.Request
}

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) Emit(req channel.Request) error {
	if !f.connected {
		return channel.ErrNotConnected
	}
	f.sent = append(f.sent, req)
	return nil
}

type fixture struct {
	env     *apptest.Env
	ch      *fakeChannel
	c       *Coordinator
	notices []string
}

func newFixture(t *testing.T, stored string) *fixture {
	t.Helper()
	var seed map[string]string
	if stored != "" {
		seed = map[string]string{modeKey: stored}
	}
	f := &fixture{env: apptest.New(seed), ch: &fakeChannel{connected: true}}
	f.c = New(f.env.App, f.ch, func() string { return "u1" }, func(s string) { f.notices = append(f.notices, s) })
	return f
}

func (f *fixture) text(k l10n.Key) string { return f.env.App.Text.T(k) }

func (f *fixture) stored() string { return f.env.Stored()[modeKey] }

func TestStartupNormalizesResolved(t *testing.T) {
	tests := []struct {
		stored string
		want   chat.SupportMode
	}{
		{"", chat.ModeNormal},
		{"normal", chat.ModeNormal},
		{"human_support", chat.ModeHumanSupport},
		{"resolved", chat.ModeNormal},
		{"garbage", chat.ModeNormal},
	}
	for _, tt := range tests {
		t.Run(tt.stored, func(t *testing.T) {
			f := newFixture(t, tt.stored)
			assert.Equal(t, tt.want, f.c.Mode())
			assert.Equal(t, tt.want == chat.ModeHumanSupport, f.c.State().IsHumanSupportRequested)
		})
	}
}

func TestRequestHumanSupport(t *testing.T) {
	f := newFixture(t, "")

	f.c.Request()

	assert.Equal(t, chat.SupportState{Mode: chat.ModeHumanSupport, IsHumanSupportRequested: true}, f.c.State())
	assert.Equal(t, "human_support", f.stored())
	assert.Equal(t, []string{f.text(l10n.NoticeSupportRequested)}, f.notices)
	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, channel.RequestHumanSupport{WebsiteID: "W", UserID: "u1"}, f.ch.sent[0])
	assert.Empty(t, f.env.Errors.List)
}

func TestCancelNoticeDependsOnModeLeft(t *testing.T) {
	tests := []struct {
		name   string
		before string
		push   string
		want   l10n.Key
	}{
		{"from human support", "human_support", "", l10n.NoticeSupportDisabled},
		{"from resolved", "", "resolved", l10n.NoticeBackToAI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.before)
			if tt.push != "" {
				f.c.HandleUpdate(channel.SupportModeUpdate{Mode: tt.push, Silent: true})
			}

			f.c.Cancel()

			assert.Equal(t, chat.ModeNormal, f.c.Mode())
			assert.Equal(t, "normal", f.stored())
			assert.Equal(t, []string{f.text(tt.want)}, f.notices)
			require.Len(t, f.ch.sent, 1)
			assert.Equal(t, channel.CancelHumanSupport{WebsiteID: "W", UserID: "u1"}, f.ch.sent[0])
		})
	}
}

func TestPushIsAdoptedVerbatim(t *testing.T) {
	f := newFixture(t, "human_support")

	f.c.HandleUpdate(channel.SupportModeUpdate{Mode: "resolved", ChatID: "c1"})

	assert.Equal(t, chat.ModeResolved, f.c.Mode())
	assert.False(t, f.c.State().IsHumanSupportRequested)
	assert.Equal(t, "resolved", f.stored())
	assert.Equal(t, []string{f.text(l10n.NoticeSupportResolved)}, f.notices)

	// A reload reads it back as normal.
	reloaded := New(f.env.App, f.ch, func() string { return "u1" }, nil)
	assert.Equal(t, chat.ModeNormal, reloaded.Mode())
	assert.Equal(t, "resolved", f.stored())
}

func TestPushNotices(t *testing.T) {
	f := newFixture(t, "")

	f.c.HandleUpdate(channel.SupportModeUpdate{Mode: "human_support"})
	f.c.HandleUpdate(channel.SupportModeUpdate{Mode: "normal"})
	f.c.HandleUpdate(channel.SupportModeUpdate{Mode: "resolved", Silent: true})

	assert.Equal(t, []string{f.text(l10n.NoticeSupportAccepted), f.text(l10n.NoticeBackToAI)}, f.notices)
	assert.Equal(t, chat.ModeResolved, f.c.Mode())
	assert.Empty(t, f.ch.sent)
}

func TestUnknownPushedModeIsIgnored(t *testing.T) {
	f := newFixture(t, "human_support")

	f.c.HandleUpdate(channel.SupportModeUpdate{Mode: "escalated"})

	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())
	assert.Equal(t, "human_support", f.stored())
	assert.Empty(t, f.notices)
}

func TestHistoryChatInfoIsNormalized(t *testing.T) {
	f := newFixture(t, "human_support")

	f.c.HandleChatInfo(&channel.ChatInfo{SupportMode: "resolved", ChatID: "c1"})
	assert.Equal(t, chat.ModeNormal, f.c.Mode())
	assert.Equal(t, "normal", f.stored())

	f.c.HandleChatInfo(&channel.ChatInfo{SupportMode: "human_support"})
	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())

	f.c.HandleChatInfo(nil)
	f.c.HandleChatInfo(&channel.ChatInfo{})
	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())
	assert.Empty(t, f.notices)
}

func TestServerAcknowledgedRequestIsSilent(t *testing.T) {
	f := newFixture(t, "")

	f.c.HandleRequested(channel.HumanSupportRequested{Data: json.RawMessage(`{"chatId":"c1"}`)})

	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())
	assert.Equal(t, "human_support", f.stored())
	assert.Empty(t, f.notices)
}

func TestRequestWhileDisconnectedStillChangesLocally(t *testing.T) {
	f := newFixture(t, "")
	f.ch.connected = false

	f.c.Request()

	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())
	assert.Equal(t, "human_support", f.stored())
	assert.Len(t, f.notices, 1)
	require.Len(t, f.env.Errors.List, 1)
	assert.Equal(t, chaterr.Connectivity, f.env.Errors.List[0].Kind)
	assert.Equal(t, string(l10n.ErrNotConnected), f.env.Errors.List[0].Code)
}

func TestResyncRereadsStorage(t *testing.T) {
	f := newFixture(t, "")
	f.env.Backend.Set(context.Background(), modeKey, "human_support")

	f.c.Resync()
	assert.Equal(t, chat.ModeHumanSupport, f.c.Mode())

	f.env.Backend.Set(context.Background(), modeKey, "resolved")
	f.c.Resync()
	assert.Equal(t, chat.ModeNormal, f.c.Mode())
}
