package predictor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the model whenever one of its candidate files is written,
// created or renamed into place. It blocks until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(s.opts.Candidates))
	dirs := make(map[string]bool)
	for _, path := range s.opts.Candidates {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.opts.Logger.Warn("cannot watch model directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		dirs[dir] = true
	}
	if len(dirs) == 0 {
		s.opts.Logger.Info("no model directories to watch")
		<-ctx.Done()
		return nil
	}
	s.opts.Logger.Info("watching model artifacts", zap.Int("dirs", len(dirs)))

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			s.opts.Logger.Debug("model artifact changed", zap.String("path", abs), zap.String("op", event.Op.String()))
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.opts.Logger.Warn("model watcher error", zap.Error(err))

		case <-timer.C:
			loaded := s.Reload()
			s.opts.Logger.Info("model reloaded after file change", zap.Bool("model_loaded", loaded))
		}
	}
}
