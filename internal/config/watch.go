package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchShop loads shop.yaml, hands it to onUpdate and then polls the file
// every interval until ctx is done. A file that fails to load on reload is
// logged and skipped until it changes again; the last good config stays in
// effect.
func WatchShop(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*ShopConfig)) error {
	if path == "" {
		path = "configs/shop.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &shopWatcher{path: path, onUpdate: onUpdate, logger: logger}
	if err := w.load(); err != nil {
		return err
	}

	go w.run(ctx, interval)
	return nil
}

// shopWatcher remembers the modification time and size of the last file it
// looked at, good or bad.
type shopWatcher struct {
	path     string
	onUpdate func(*ShopConfig)
	logger   zerolog.Logger

	seenMod  time.Time
	seenSize int64
}

func (w *shopWatcher) load() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	cfg, err := LoadShopConfig(w.path)
	if err != nil {
		return err
	}
	w.seen(info)
	w.apply(cfg)
	return nil
}

func (w *shopWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads the file if it changed since the last look and reports
// whether onUpdate was called.
func (w *shopWatcher) poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", w.path).Msg("shop config stat failed")
		return false
	}
	if info.ModTime().Equal(w.seenMod) && info.Size() == w.seenSize {
		return false
	}
	w.seen(info)

	cfg, err := LoadShopConfig(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("shop config reload failed, keeping previous")
		return false
	}
	w.logger.Info().Str("path", w.path).Str("summary", cfg.String()).Msg("shop config reloaded")
	w.apply(cfg)
	return true
}

func (w *shopWatcher) seen(info os.FileInfo) {
	w.seenMod = info.ModTime()
	w.seenSize = info.Size()
}

func (w *shopWatcher) apply(cfg *ShopConfig) {
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}
