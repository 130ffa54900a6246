// Package translate implements the poll → parse → transform →
// multi-destination write pipeline: a translate channel's entire
// reason for existing.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/errs"
	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/hl7codec"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/retry"
	"github.com/localbridge/hl7bridge/internal/stats"
	"github.com/localbridge/hl7bridge/internal/transform"
)

// Channel polls one inputDir, transforms each matching file, and writes
// the result to every configured destination.
type Channel struct {
	cfg         channelconfig.TranslateConfig
	transformer transform.Transformer
	stats       *stats.Store
	retryCfg    retry.Config
	bus         *eventbus.Bus

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Channel, resolving and compiling its transformer. A
// failure here is returned as a ConfigError and no Channel is built.
// bus may be nil, in which case activity events are simply not
// published.
func New(cfg channelconfig.TranslateConfig, confRoot, yamlDir string, store *stats.Store, bus *eventbus.Bus) (*Channel, error) {
	tr, err := transform.Build(cfg.Transformer, confRoot, yamlDir)
	if err != nil {
		return nil, errs.Config("translate."+cfg.Name, "build-transformer", err)
	}
	return &Channel{
		cfg:         cfg,
		transformer: tr,
		stats:       store,
		retryCfg:    retry.NewConfig(cfg.ErrorHandling.RetryCount, cfg.ErrorHandling.RetryDelayMs),
		bus:         bus,
	}, nil
}

// Name returns the channel's configured name.
func (c *Channel) Name() string { return c.cfg.Name }

// Enabled reports the channel's configured enabled flag.
func (c *Channel) Enabled() bool { return c.cfg.Enabled }

// SourceDir returns the directory this channel polls, for introspection.
func (c *Channel) SourceDir() string { return c.cfg.InputDir }

// Start launches the polling loop in the background. Calling Start on
// an already-running channel is a no-op.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

// Stop signals the polling loop to exit and waits for the current file
// (if any) to finish.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
}

// IsRunning reports whether the polling loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Channel) loop(ctx context.Context) {
	defer c.wg.Done()

	interval := time.Duration(c.cfg.PollIntervalMs) * time.Millisecond
	for {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		entries, err := filepath.Glob(filepath.Join(c.cfg.InputDir, c.cfg.InputPattern))
		if err != nil {
			slog.Warn("translate: glob failed", "channel", c.cfg.Name, "err", err)
			continue
		}
		if len(entries) > c.cfg.BatchSize {
			entries = entries[:c.cfg.BatchSize]
		}

		for _, path := range entries {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			c.processFile(ctx, path)
		}
	}
}

func (c *Channel) processFile(ctx context.Context, path string) {
	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.attempt(path)
	})
	if err != nil {
		c.disposeError(path, err)
		return
	}
	c.disposeSuccess(path)
}

// attempt runs the read -> transform -> write-all unit exactly once.
// On any failure it rolls back destination files already written
// during this attempt, so a failed attempt never leaves a partial
// write behind.
func (c *Channel) attempt(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.IOWrite(c.cfg.Name, "read", err)
	}

	msg, err := hl7codec.Parse(string(data))
	if err != nil {
		return errs.Transform(c.cfg.Name, "parse", err)
	}

	transformed, err := c.transformer.Transform(msg)
	if err != nil {
		return errs.Transform(c.cfg.Name, "transform", err)
	}

	encoded := []byte(hl7codec.Encode(transformed))
	name := filepath.Base(path)

	var written []string
	for _, dest := range c.cfg.Destinations {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			c.rollback(written)
			return errs.IOWrite(c.cfg.Name, "mkdir-dest", err)
		}
		destPath := filepath.Join(dest, name)
		if err := os.WriteFile(destPath, encoded, 0o644); err != nil {
			c.rollback(written)
			return errs.IOWrite(c.cfg.Name, "write-dest", err)
		}
		written = append(written, destPath)
	}
	return nil
}

func (c *Channel) rollback(written []string) {
	for _, p := range written {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("translate: rollback failed to remove partial write", "channel", c.cfg.Name, "path", p, "err", err)
		}
	}
}

func (c *Channel) disposeSuccess(path string) {
	if c.cfg.Archive.Enabled && c.cfg.ArchiveDir != "" {
		if err := os.MkdirAll(c.cfg.ArchiveDir, 0o755); err != nil {
			slog.Warn("translate: archive mkdir failed", "channel", c.cfg.Name, "err", err)
		} else if err := os.Rename(path, filepath.Join(c.cfg.ArchiveDir, filepath.Base(path))); err != nil {
			slog.Warn("translate: archive move failed", "channel", c.cfg.Name, "err", err)
		}
	} else {
		if err := os.Remove(path); err != nil {
			slog.Warn("translate: delete input failed", "channel", c.cfg.Name, "err", err)
		}
	}

	if err := c.stats.IncrementProcessed(c.cfg.Name); err != nil {
		slog.Warn("translate: stats flush failed", "channel", c.cfg.Name, "err", err)
	}
	if err := c.bus.PublishChannelEvent(context.Background(), model.KindTranslate, c.cfg.Name, model.EventProcessed, ""); err != nil {
		slog.Warn("translate: event publish failed", "channel", c.cfg.Name, "err", err)
	}
}

func (c *Channel) disposeError(path string, cause error) {
	if c.cfg.ErrorDir != "" {
		if err := os.MkdirAll(c.cfg.ErrorDir, 0o755); err != nil {
			slog.Warn("translate: error dir mkdir failed", "channel", c.cfg.Name, "err", err)
		} else {
			sidecar := filepath.Join(c.cfg.ErrorDir, filepath.Base(path)+".error.txt")
			content := fmt.Sprintf("channel=%s\nfile=%s\ntimestamp=%s\nkind=%s\nmessage=%v\n",
				c.cfg.Name, filepath.Base(path), time.Now().Format(time.RFC3339), errs.KindOf(cause), cause)
			if err := os.WriteFile(sidecar, []byte(content), 0o644); err != nil {
				slog.Warn("translate: sidecar write failed", "channel", c.cfg.Name, "err", err)
			}
			dest := filepath.Join(c.cfg.ErrorDir, filepath.Base(path))
			_ = os.Remove(dest)
			if err := os.Rename(path, dest); err != nil {
				slog.Warn("translate: error move failed", "channel", c.cfg.Name, "err", err)
			}
		}
	} else {
		if err := os.Remove(path); err != nil {
			slog.Warn("translate: delete failed input failed", "channel", c.cfg.Name, "err", err)
		}
	}

	if err := c.stats.IncrementErrors(c.cfg.Name); err != nil {
		slog.Warn("translate: stats flush failed", "channel", c.cfg.Name, "err", err)
	}
	if err := c.bus.PublishChannelEvent(context.Background(), model.KindTranslate, c.cfg.Name, model.EventError, cause.Error()); err != nil {
		slog.Warn("translate: event publish failed", "channel", c.cfg.Name, "err", err)
	}
}
