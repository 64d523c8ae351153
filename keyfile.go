package authgate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
)

const fileReloadDebounce = 500 * time.Millisecond

// FileKeyProvider reads an HMAC secret from a file, typically a mounted
// secret volume, and reloads it when the file changes.
type FileKeyProvider struct {
	cachedKey
	path      string
	algorithm string
	logger    *zap.Logger
}

// NewFileKeyProvider loads the secret at path.
func NewFileKeyProvider(path, algorithm string, logger *zap.Logger) (*FileKeyProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FileKeyProvider{
		path:      path,
		algorithm: algorithm,
		logger:    logger,
	}
	if err := p.Reload(); err != nil {
		return nil, newError(ErrCodeConfiguration, err)
	}
	return p, nil
}

// KeySet returns the most recently loaded secret.
func (p *FileKeyProvider) KeySet(context.Context) (jwk.Set, error) {
	return p.load()
}

// Reload re-reads the file. A failed reload keeps the previous key.
func (p *FileKeyProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	set, err := hmacKeySet(data, p.algorithm)
	if err != nil {
		return fmt.Errorf("key file %s: %w", p.path, err)
	}
	p.store(set)
	return nil
}

// Run watches the key file's directory and reloads on change until ctx is done.
// The directory is watched rather than the file because secret volumes swap
// files through symlinks.
func (p *FileKeyProvider) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fileReloadDebounce)
			} else {
				timer.Reset(fileReloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			timer = nil
			if err := p.Reload(); err != nil {
				p.logger.Warn("key file reload failed, keeping previous key",
					zap.String("path", p.path),
					zap.Error(err))
				continue
			}
			p.logger.Info("key file reloaded", zap.String("path", p.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("key file watcher error", zap.Error(err))
		}
	}
}
