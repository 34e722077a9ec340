package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// SealedBackend encrypts values with XChaCha20-Poly1305 before they reach the inner
// backend. The key is derived from a passphrase with Argon2id; the salt lives in the
// inner backend under SaltKey. Each value is bound to its key name.
type SealedBackend struct {
	inner      Backend
	passphrase string
	SaltKey    string

	once   sync.Once
	key    []byte
	keyErr error
}

func NewSealedBackend(inner Backend, passphrase, saltKey string) *SealedBackend {
	return &SealedBackend{inner: inner, passphrase: passphrase, SaltKey: saltKey}
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func (s *SealedBackend) cipherKey(ctx context.Context) ([]byte, error) {
	s.once.Do(func() {
		enc, ok, err := s.inner.Get(ctx, s.SaltKey)
		if err != nil {
			s.keyErr = err
			return
		}
		var salt []byte
		if ok {
			salt, err = base64.StdEncoding.DecodeString(enc)
			if err != nil || len(salt) != saltLen {
				s.keyErr = errors.New("stored salt is corrupt")
				return
			}
		} else {
			salt = make([]byte, saltLen)
			if _, err := rand.Read(salt); err != nil {
				s.keyErr = errors.Wrap(err, "generate salt")
				return
			}
			if err := s.inner.Set(ctx, s.SaltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
				s.keyErr = err
				return
			}
		}
		s.key = deriveKey(s.passphrase, salt)
	})
	return s.key, s.keyErr
}

func (s *SealedBackend) Get(ctx context.Context, key string) (string, bool, error) {
	enc, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	k, err := s.cipherKey(ctx)
	if err != nil {
		return "", false, err
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", false, errors.Wrapf(err, "decode %s", key)
	}
	plain, err := open(k, raw, []byte(key))
	if err != nil {
		return "", false, errors.Wrapf(err, "open %s", key)
	}
	return string(plain), true, nil
}

func (s *SealedBackend) Set(ctx context.Context, key, value string) error {
	k, err := s.cipherKey(ctx)
	if err != nil {
		return err
	}
	sealed, err := seal(k, []byte(value), []byte(key))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *SealedBackend) SetMany(ctx context.Context, values map[string]string) error {
	k, err := s.cipherKey(ctx)
	if err != nil {
		return err
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		sealed, err := seal(k, []byte(value), []byte(key))
		if err != nil {
			return err
		}
		out[key] = base64.StdEncoding.EncodeToString(sealed)
	}
	return SetMany(ctx, s.inner, out)
}

func (s *SealedBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedBackend) Close() error { return s.inner.Close() }

// seal returns nonce || ciphertext.
func seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

func open(key, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, msg := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, msg, ad)
}
