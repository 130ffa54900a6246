// Package outbound implements the poll → MLLP-send → await-ACK
// pipeline for outbound channels, dispatching sends across a bounded
// worker pool sized by concurrentSends.
package outbound

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/errs"
	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/mllp"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/stats"
	"github.com/localbridge/hl7bridge/internal/worker"
)

// Channel polls sourceDir and delivers each matching file as a framed
// MLLP message to host:port.
type Channel struct {
	cfg   channelconfig.OutboundConfig
	stats *stats.Store
	bus   *eventbus.Bus

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	pool    *worker.Pool[string]
}

// New builds a Channel. bus may be nil, in which case activity events
// are simply not published.
func New(cfg channelconfig.OutboundConfig, store *stats.Store, bus *eventbus.Bus) *Channel {
	return &Channel{cfg: cfg, stats: store, bus: bus}
}

// Name returns the channel's configured name.
func (c *Channel) Name() string { return c.cfg.Name }

// Enabled reports the channel's configured enabled flag.
func (c *Channel) Enabled() bool { return c.cfg.Enabled }

// SourceDir returns the directory this channel polls, for introspection.
func (c *Channel) SourceDir() string { return c.cfg.SourceDir }

// Start launches the polling loop and its send worker pool.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.pool = worker.NewPool(c.cfg.ConcurrentSends, func(ctx context.Context, path string) {
		c.sendFile(path)
	})
	c.pool.Start(ctx)

	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

// Stop signals the polling loop and worker pool to exit and waits for
// in-flight sends to finish.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	pool := c.pool
	c.mu.Unlock()

	c.wg.Wait()
	if pool != nil {
		pool.Stop()
	}
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

		entries, err := filepath.Glob(filepath.Join(c.cfg.SourceDir, c.cfg.Pattern))
		if err != nil {
			slog.Warn("outbound: glob failed", "channel", c.cfg.Name, "err", err)
			continue
		}

		for _, path := range entries {
			if !c.pool.Submit(ctx, path) {
				return
			}
		}
	}
}

func (c *Channel) sendFile(path string) {
	err := c.attempt(path)
	if err != nil {
		c.disposeError(path, err)
		return
	}
	c.disposeSuccess(path)
}

func (c *Channel) attempt(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.IOWrite(c.cfg.Name, "read", err)
	}
	if len(data) == 0 {
		return errs.Transform(c.cfg.Name, "empty-file", fmt.Errorf("empty HL7 file"))
	}

	dialer := net.Dialer{Timeout: time.Duration(c.cfg.ConnectTimeoutMs) * time.Millisecond}
	conn, err := dialer.Dial("tcp", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port))
	if err != nil {
		return errs.Timeout(c.cfg.Name, "connect", err)
	}
	defer conn.Close()

	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond
	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	w := bufio.NewWriter(conn)
	if err := mllp.WriteFrame(w, data); err != nil {
		return errs.Framing(c.cfg.Name, "write", err)
	}

	if !c.cfg.WaitForAck {
		return nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	if _, err := mllp.ReadFrame(bufio.NewReader(conn), 0); err != nil {
		return errs.Timeout(c.cfg.Name, "await-ack", err)
	}
	return nil
}

func (c *Channel) disposeSuccess(path string) {
	if c.cfg.ArchiveDir != "" {
		if err := os.MkdirAll(c.cfg.ArchiveDir, 0o755); err != nil {
			slog.Warn("outbound: archive mkdir failed", "channel", c.cfg.Name, "err", err)
		} else if err := os.Rename(path, filepath.Join(c.cfg.ArchiveDir, filepath.Base(path))); err != nil {
			slog.Warn("outbound: archive move failed", "channel", c.cfg.Name, "err", err)
		}
	} else {
		if err := os.Remove(path); err != nil {
			slog.Warn("outbound: delete input failed", "channel", c.cfg.Name, "err", err)
		}
	}

	if err := c.stats.IncrementProcessed(c.cfg.Name); err != nil {
		slog.Warn("outbound: stats flush failed", "channel", c.cfg.Name, "err", err)
	}
	if err := c.bus.PublishChannelEvent(context.Background(), model.KindOutbound, c.cfg.Name, model.EventProcessed, ""); err != nil {
		slog.Warn("outbound: event publish failed", "channel", c.cfg.Name, "err", err)
	}
}

func (c *Channel) disposeError(path string, cause error) {
	if c.cfg.ErrorDir != "" {
		if err := os.MkdirAll(c.cfg.ErrorDir, 0o755); err != nil {
			slog.Warn("outbound: error dir mkdir failed", "channel", c.cfg.Name, "err", err)
		} else {
			sidecar := filepath.Join(c.cfg.ErrorDir, filepath.Base(path)+".error.txt")
			content := fmt.Sprintf("channel=%s\nfile=%s\ntimestamp=%s\nkind=%s\nmessage=%v\n",
				c.cfg.Name, filepath.Base(path), time.Now().Format(time.RFC3339), errs.KindOf(cause), cause)
			if err := os.WriteFile(sidecar, []byte(content), 0o644); err != nil {
				slog.Warn("outbound: sidecar write failed", "channel", c.cfg.Name, "err", err)
			}
			dest := filepath.Join(c.cfg.ErrorDir, filepath.Base(path))
			_ = os.Remove(dest)
			if err := os.Rename(path, dest); err != nil {
				slog.Warn("outbound: error move failed", "channel", c.cfg.Name, "err", err)
			}
		}
	} else {
		slog.Warn("outbound: no errorDir configured, leaving file in place", "channel", c.cfg.Name, "path", path)
	}

	if err := c.stats.IncrementErrors(c.cfg.Name); err != nil {
		slog.Warn("outbound: stats flush failed", "channel", c.cfg.Name, "err", err)
	}
	if err := c.bus.PublishChannelEvent(context.Background(), model.KindOutbound, c.cfg.Name, model.EventError, cause.Error()); err != nil {
		slog.Warn("outbound: event publish failed", "channel", c.cfg.Name, "err", err)
	}
}
