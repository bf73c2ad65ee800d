package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrelworks/aviary/internal/logger"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads the account and proxy stores when their flat files
// change on disk, so operators can rotate populations without a restart.
type Watcher struct {
	accounts *AccountStore
	proxies  *ProxyStore
	onReload func()
	logger   *logger.StyledLogger
}

// NewWatcher wires the two stores to their files. onReload runs after a
// successful reload of either store (the health registry hooks in here).
func NewWatcher(accounts *AccountStore, proxies *ProxyStore, onReload func(), logger *logger.StyledLogger) *Watcher {
	return &Watcher{
		accounts: accounts,
		proxies:  proxies,
		onReload: onReload,
		logger:   logger,
	}
}

// Start watches until the context is cancelled. Editors replace files
// rather than writing in place, so the watch is on the parent directories
// and events are debounced.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{
		filepath.Dir(w.accounts.accountsPath): {},
		filepath.Dir(w.proxies.path):          {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	go w.loop(ctx, watcher)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() { _ = watcher.Close() }()

	var (
		debounce     *time.Timer
		debounceCh   <-chan time.Time
		pendingAccts bool
		pendingProxy bool
	)

	accountsFile := filepath.Clean(w.accounts.accountsPath)
	proxiesFile := filepath.Clean(w.proxies.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Clean(event.Name)
			if name != accountsFile && name != proxiesFile {
				continue
			}
			pendingAccts = pendingAccts || name == accountsFile
			pendingProxy = pendingProxy || name == proxiesFile
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			if pendingAccts {
				pendingAccts = false
				if err := w.accounts.Load(); err != nil {
					w.logger.Error("Failed to reload accounts", "error", err)
				} else {
					w.logger.Info("Accounts reloaded from disk")
					w.notify()
				}
			}
			if pendingProxy {
				pendingProxy = false
				if err := w.proxies.Load(); err != nil {
					w.logger.Error("Failed to reload proxies", "error", err)
				} else {
					w.logger.Info("Proxies reloaded from disk")
					w.notify()
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify() {
	if w.onReload != nil {
		w.onReload()
	}
}
