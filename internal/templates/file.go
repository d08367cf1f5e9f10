// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/model"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

type templateFile struct {
	Template []model.QueryTemplate `toml:"template" yaml:"template"`
}

// LoadFile parses a template file. Files ending in .yaml or .yml are read
// as YAML, everything else as TOML. Entries without an input or a query
// are skipped.
func LoadFile(path string) ([]model.QueryTemplate, error) {
	var f templateFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
		}
	}

	out := make([]model.QueryTemplate, 0, len(f.Template))
	for _, t := range f.Template {
		t = clean(t)
		if valid(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// =============================================================================
// FILE SOURCE
// =============================================================================

// FileSource serves templates from a TOML file. After Watch, edits to the
// file are picked up without a restart. A file that fails to parse keeps
// the previous list.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	templates []model.QueryTemplate

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Provider = (*FileSource)(nil)

// NewFileSource loads path once.
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	fs := &FileSource{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   logging.OrNop(logger).Named("templates"),
	}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// WithDebounce sets the reload debounce.
func (fs *FileSource) WithDebounce(d time.Duration) *FileSource {
	if d > 0 {
		fs.debounce = d
	}
	return fs
}

// Path returns the watched file.
func (fs *FileSource) Path() string {
	return fs.path
}

// Templates returns the most recently loaded list.
func (fs *FileSource) Templates(context.Context) ([]model.QueryTemplate, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return append([]model.QueryTemplate(nil), fs.templates...), nil
}

// Reload re-reads the file.
func (fs *FileSource) Reload() error {
	list, err := LoadFile(fs.path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	fs.templates = list
	fs.mu.Unlock()

	fs.logger.Debug("templates loaded", zap.String("path", fs.path), zap.Int("count", len(list)))
	return nil
}

// Watch starts reloading the file when it changes. The parent directory is
// watched so editors that replace the file by rename are still seen.
func (fs *FileSource) Watch() error {
	if fs.watcher != nil {
		return errors.New("already watching")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(fs.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(fs.path), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fs.watcher = w
	fs.cancel = cancel
	fs.done = make(chan struct{})

	go fs.processEvents(ctx)
	return nil
}

// Close stops watching. It is safe to call without Watch.
func (fs *FileSource) Close() error {
	if fs.watcher == nil {
		return nil
	}
	fs.cancel()
	err := fs.watcher.Close()
	<-fs.done
	fs.watcher = nil
	return err
}

// processEvents reloads once no event for the file has arrived for the
// debounce interval.
func (fs *FileSource) processEvents(ctx context.Context) {
	defer close(fs.done)

	timer := time.NewTimer(fs.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fs.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(fs.debounce)

		case <-timer.C:
			if err := fs.Reload(); err != nil {
				fs.logger.Warn("template reload failed, keeping previous list",
					zap.String("path", fs.path), zap.Error(err))
			} else {
				fs.logger.Info("templates reloaded", zap.String("path", fs.path))
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}
