package sessionstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ehrlich-b/chatsync/internal/config"
)

// OpenBackend builds the backend named in cfg, sealed when a secret is set.
func OpenBackend(cfg config.StorageConfig, keys Keys) (Backend, error) {
	var b Backend
	switch cfg.Backend {
	case config.BackendMemory:
		b = NewMemoryBackend()
	case config.BackendFile:
		fb, err := NewFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		b = fb
	case config.BackendSQLite:
		sb, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		b = sb
	case config.BackendRedis:
		rb := NewRedisBackend(cfg.RedisAddr, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rb.Ping(ctx); err != nil {
			rb.Close()
			return nil, err
		}
		b = rb
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if cfg.Secret != "" {
		b = NewSealedBackend(b, cfg.Secret, keys.Salt)
	}
	return b, nil
}

// FileOf returns the FileBackend under b, if there is one, for watching.
func FileOf(b Backend) (*FileBackend, bool) {
	switch v := b.(type) {
	case *FileBackend:
		return v, true
	case *SealedBackend:
		return FileOf(v.inner)
	}
	return nil, false
}
