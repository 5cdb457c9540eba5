package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watch re-indexes files under root as they change until ctx is done.
// Events are coalesced per file for the configured debounce window. A
// removed file has its entity deleted. Per-file failures are logged and do
// not stop the watch.
func (s *Service) Watch(ctx context.Context, root string, opts IndexOptions) error {
	sc, err := s.resolve(root, opts)
	if err != nil {
		return err
	}
	ctx = logging.WithTenantID(ctx, sc.opts.TenantID)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()

	if _, err := s.watchTree(watcher, sc, sc.root); err != nil {
		return err
	}
	s.logger.Info(ctx, "watching directory", zap.String("path", sc.root))

	debounce := s.config.WatchDebounce.Duration()
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(sc.root, event.Name)
			if err != nil || rel == "." {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if sc.skipDir(rel) {
						continue
					}
					// Files written before the watch was added produce no events.
					files, err := s.watchTree(watcher, sc, event.Name)
					if err != nil {
						s.logger.Warn(ctx, "failed to watch directory", zap.String("dir", rel), zap.Error(err))
					}
					for _, f := range files {
						pending[f] = struct{}{}
					}
					timer.Reset(debounce)
					continue
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[rel] = struct{}{}
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(ctx, "watcher error", zap.Error(err))

		case <-timer.C:
			s.flush(ctx, sc, pending)
			pending = make(map[string]struct{})
		}
	}
}

// watchTree adds dir and its eligible subdirectories to watcher and returns
// the relative paths of the regular files found.
func (s *Service) watchTree(watcher *fsnotify.Watcher, sc *scope, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sc.root, p)
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, rel)
			}
			return nil
		}
		if rel != "." && sc.skipDir(rel) {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", rel, err)
		}
		return nil
	})
	return files, err
}

// flush applies the pending changes in path order.
func (s *Service) flush(ctx context.Context, sc *scope, pending map[string]struct{}) {
	rels := make([]string, 0, len(pending))
	for rel := range pending {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		info, err := os.Stat(filepath.Join(sc.root, rel))
		switch {
		case os.IsNotExist(err):
			if sc.ignored.Match(rel, false) {
				continue
			}
			if err := s.engine.DeletePointsForEntity(ctx, sc.entity(rel)); err != nil {
				s.logger.Error(ctx, "failed to delete removed file", zap.String("file", rel), zap.Error(err))
				continue
			}
			s.logger.Info(ctx, "removed file", zap.String("file", rel))

		case err != nil:
			s.logger.Warn(ctx, "failed to stat file", zap.String("file", rel), zap.Error(err))

		case !info.Mode().IsRegular() || !sc.includes(rel, info.Size()):

		default:
			res, err := s.indexFile(ctx, sc, rel)
			if errors.Is(err, errBinary) {
				continue
			}
			if err != nil {
				s.logger.Error(ctx, "failed to reindex file", zap.String("file", rel), zap.Error(err))
				continue
			}
			s.logger.Info(ctx, "reindexed file",
				zap.String("file", rel),
				zap.Int("chunks", res.Chunks),
				zap.Int("embedded", res.Embedded),
				zap.Int("reused", res.Reused),
			)
		}
	}
}
