package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/df-mc/atomic"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileProvider reads the config from a YAML file.
type FileProvider struct {
	Path   string
	Logger *zap.Logger

	watcher *atomic.Value[*fsnotify.Watcher]
}

func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileProvider{
		Path:    path,
		Logger:  logger,
		watcher: atomic.NewValue[*fsnotify.Watcher](nil),
	}
}

func (p *FileProvider) Config() (Config, error) {
	path, err := filepath.EvalSymlinks(p.Path)
	if err != nil {
		return Config{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a YAML config on top of DefaultConfig, applies the target
// defaults and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Watch calls fn with the new config every time the file changes until ctx is done.
// Changes that do not result in a valid config are logged and skipped.
func (p *FileProvider) Watch(ctx context.Context, fn func(Config)) error {
	if p.watcher.Load() != nil {
		return errors.New("already watching")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	p.watcher.Store(w)
	defer p.watcher.Store(nil)

	// Editors often replace the file instead of writing to it,
	// so the directory is watched.
	if err := w.Add(filepath.Dir(p.Path)); err != nil {
		return err
	}
	name := filepath.Clean(p.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				p.Logger.Debug("closing config watcher",
					zap.String("cause", "watcher event channel closed"),
				)
				return nil
			}

			if filepath.Clean(e.Name) != name {
				continue
			}

			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) {
				continue
			}

			cfg, err := p.Config()
			if err != nil {
				p.Logger.Error("failed to reload config",
					zap.Error(err),
					zap.String("path", p.Path),
				)
				continue
			}

			p.Logger.Info("config reloaded", zap.String("path", p.Path))
			fn(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				p.Logger.Debug("closing config watcher",
					zap.String("cause", "watcher error channel closed"),
				)
				return nil
			}

			p.Logger.Error("error while watching config",
				zap.Error(err),
				zap.String("path", p.Path),
			)
		}
	}
}
