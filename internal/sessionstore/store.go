package sessionstore

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/chatsync/internal/chat"
)

const (
	minTokenLen    = 10
	tombstoneValue = "true"
	opTimeout      = 3 * time.Second
)

// Keys are the four persisted entries of one deployment, plus the salt used by
// SealedBackend.
type Keys struct {
	Token       string
	UserID      string
	SupportMode string
	LoggedOut   string
	Salt        string
}

func KeysFor(prefix, websiteID string) Keys {
	return Keys{
		Token:       prefix + "_auth_token_" + websiteID,
		UserID:      prefix + "_user_id_" + websiteID,
		SupportMode: prefix + "_support_mode_" + websiteID,
		LoggedOut:   prefix + "_logged_out_" + websiteID,
		Salt:        prefix + "_salt_" + websiteID,
	}
}

// Store is the typed view over a Backend. It is written through on every change and
// read at startup and on resync. If the backend fails, the failure is reported once
// and the store keeps working on an in-memory copy.
type Store struct {
	backend   Backend
	mirror    *MemoryBackend
	keys      Keys
	degraded  bool
	onFailure func(error)
	log       zerolog.Logger
	now       func() time.Time
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

// WithFailureHandler is called once, with the first backend error.
func WithFailureHandler(fn func(error)) Option { return func(s *Store) { s.onFailure = fn } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns a store over b.
func New(b Backend, keys Keys, opts ...Option) *Store {
	s := &Store{
		backend: b,
		mirror:  NewMemoryBackend(),
		keys:    keys,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Keys() Keys { return s.keys }

// Degraded reports whether the store fell back to memory.
func (s *Store) Degraded() bool { return s.degraded }

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) degrade(err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	s.log.Error().Err(err).Msg("session storage failed, continuing in memory")
	if s.onFailure != nil {
		s.onFailure(err)
	}
}

func (s *Store) get(key string) (string, bool) {
	if !s.degraded {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		v, ok, err := s.backend.Get(ctx, key)
		if err == nil {
			if ok {
				s.mirror.Set(ctx, key, v)
			} else {
				s.mirror.Delete(ctx, key)
			}
			return v, ok
		}
		s.degrade(err)
	}
	v, ok, _ := s.mirror.Get(context.Background(), key)
	return v, ok
}

func (s *Store) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	s.mirror.Set(ctx, key, value)
	if s.degraded {
		return
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.degrade(err)
	}
}

func (s *Store) setMany(values map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	s.mirror.SetMany(ctx, values)
	if s.degraded {
		return
	}
	if err := SetMany(ctx, s.backend, values); err != nil {
		s.degrade(err)
	}
}

func (s *Store) del(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	s.mirror.Delete(ctx, key)
	if s.degraded {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.degrade(err)
	}
}

// Restored is a session recovered from storage.
type Restored struct {
	Token  string
	UserID string
}

// LoadSession returns the stored identity unless the logged-out tombstone is set
// or the token is unusable. Unusable or tombstoned credentials are removed.
func (s *Store) LoadSession() (Restored, bool) {
	r, verdict := s.inspect()
	switch verdict {
	case verdictLoggedOut:
		s.log.Info().Msg("logged-out flag set, not restoring session")
		s.ClearCredentials()
	case verdictUnusable:
		s.log.Info().Msg("stored token unusable, clearing")
		s.ClearCredentials()
	case verdictOK:
		s.log.Info().Str("user_id", r.UserID).Msg("restored session")
		return r, true
	}
	return Restored{}, false
}

// PeekSession reports what LoadSession would restore and why not, without
// removing anything.
func (s *Store) PeekSession() (Restored, string) {
	return s.inspect()
}

const (
	verdictOK        = "restorable"
	verdictMissing   = "no saved session"
	verdictLoggedOut = "logged out"
	verdictUnusable  = "token unusable"
)

func (s *Store) inspect() (Restored, string) {
	if s.LoggedOut() {
		return Restored{}, verdictLoggedOut
	}
	token, okT := s.get(s.keys.Token)
	userID, okU := s.get(s.keys.UserID)
	if !okT || !okU || token == "" || userID == "" {
		return Restored{}, verdictMissing
	}
	if !usableToken(token, s.now()) {
		return Restored{}, verdictUnusable
	}
	return Restored{Token: token, UserID: userID}, verdictOK
}

// usableToken rejects short tokens and JWTs whose exp has passed. Opaque tokens
// that are not JWTs are accepted as long as they are long enough.
func usableToken(token string, now time.Time) bool {
	if len(token) < minTokenLen {
		return false
	}
	if strings.Count(token, ".") != 2 {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.Before(exp.Time)
}

// Credentials reads the raw stored identity without any validation.
func (s *Store) Credentials() (token, userID string) {
	token, _ = s.get(s.keys.Token)
	userID, _ = s.get(s.keys.UserID)
	return token, userID
}

// SaveCredentials persists token and userID together.
func (s *Store) SaveCredentials(token, userID string) {
	s.setMany(map[string]string{s.keys.Token: token, s.keys.UserID: userID})
}

func (s *Store) ClearCredentials() {
	s.del(s.keys.Token)
	s.del(s.keys.UserID)
}

func (s *Store) LoggedOut() bool {
	v, ok := s.get(s.keys.LoggedOut)
	return ok && v != "" && v != "false"
}

func (s *Store) SetLoggedOut() { s.set(s.keys.LoggedOut, tombstoneValue) }

func (s *Store) ClearLoggedOut() { s.del(s.keys.LoggedOut) }

// LoadSupportMode is the read path: resolved comes back as normal, and anything
// unrecognized or missing is normal.
func (s *Store) LoadSupportMode() chat.SupportMode {
	raw, ok := s.get(s.keys.SupportMode)
	if !ok {
		return chat.ModeNormal
	}
	mode, ok := chat.ParseSupportMode(raw)
	if !ok {
		s.log.Warn().Str("mode", raw).Msg("ignoring unknown stored support mode")
		return chat.ModeNormal
	}
	return mode.Effective()
}

// RawSupportMode returns exactly what is stored.
func (s *Store) RawSupportMode() string {
	v, _ := s.get(s.keys.SupportMode)
	return v
}

// SaveSupportMode writes mode verbatim.
func (s *Store) SaveSupportMode(mode chat.SupportMode) {
	s.set(s.keys.SupportMode, string(mode))
}
