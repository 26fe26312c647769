package downloadmodule

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tunegrab/tunegrab/internal/logger"
)

// CookieStore tracks the configured session cookie files for the download
// source. Files are consumed directly by the extractor process; the store
// only decides which file an attempt uses and keeps the available set
// fresh when operators swap refreshed credentials in place.
type CookieStore struct {
	mu         sync.RWMutex
	configured []string
	available  []string
	watcher    *fsnotify.Watcher
	stopCh     chan struct{}
}

// NewCookieStore builds a store over the configured cookie file paths.
func NewCookieStore(paths []string) *CookieStore {
	s := &CookieStore{
		configured: paths,
		stopCh:     make(chan struct{}),
	}
	s.refresh()
	return s
}

// FileFor returns the cookie file for the given 1-based attempt number,
// rotating through the available files so consecutive retries present
// different sessions. Empty when no cookie file is usable.
func (s *CookieStore) FileFor(attempt int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.available) == 0 {
		return ""
	}
	if attempt < 1 {
		attempt = 1
	}
	return s.available[(attempt-1)%len(s.available)]
}

// Available returns the number of currently usable cookie files.
func (s *CookieStore) Available() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.available)
}

// Watch starts a filesystem watcher over the cookie files' directories so
// operator-refreshed credentials are picked up without a restart.
func (s *CookieStore) Watch() error {
	if len(s.configured) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	dirs := map[string]bool{}
	for _, path := range s.configured {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("failed to watch cookie directory", []logger.Field{
				logger.String("dir", dir),
				logger.Err(err),
			})
		}
	}

	go s.watchLoop()
	return nil
}

func (s *CookieStore) watchLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if s.isCookieFile(event.Name) {
				logger.Info("cookie file changed, refreshing session set", []logger.Field{
					logger.String("file", event.Name),
					logger.String("op", event.Op.String()),
				})
				s.refresh()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logWatchError(err)
		}
	}
}

// Close stops the watcher.
func (s *CookieStore) Close() {
	close(s.stopCh)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// refresh recomputes the set of configured files that exist on disk.
func (s *CookieStore) refresh() {
	available := make([]string, 0, len(s.configured))
	for _, path := range s.configured {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			available = append(available, path)
		}
	}

	s.mu.Lock()
	s.available = available
	s.mu.Unlock()
}

func (s *CookieStore) isCookieFile(name string) bool {
	for _, path := range s.configured {
		if filepath.Clean(name) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

func (s *CookieStore) logWatchError(err error) {
	logger.Warn("cookie watcher error", []logger.Field{logger.Err(err)})
}
