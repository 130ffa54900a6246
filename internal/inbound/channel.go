// Package inbound implements the TCP accept loop and per-connection
// MLLP receive/persist/ACK handling for inbound channels.
package inbound

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/errs"
	"github.com/localbridge/hl7bridge/internal/eventbus"
	"github.com/localbridge/hl7bridge/internal/hl7codec"
	"github.com/localbridge/hl7bridge/internal/mllp"
	"github.com/localbridge/hl7bridge/internal/model"
	"github.com/localbridge/hl7bridge/internal/stats"
)

// defaultReadDeadline bounds how long a connection may sit idle before
// the channel gives up on it; InboundConfig has no explicit timeout
// knob, so this is a fixed engine-level default.
const defaultReadDeadline = 30 * time.Second

// Channel accepts MLLP connections on one TCP port, persists each
// received message under saveDir, and replies with an ACK.
type Channel struct {
	cfg   channelconfig.InboundConfig
	stats *stats.Store
	bus   *eventbus.Bus

	mu       sync.Mutex
	running  bool
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Channel and ensures saveDir exists. bus may be nil, in
// which case activity events are simply not published.
func New(cfg channelconfig.InboundConfig, store *stats.Store, bus *eventbus.Bus) (*Channel, error) {
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, errs.Config("inbound."+cfg.Name, "mkdir-savedir", err)
	}
	return &Channel{cfg: cfg, stats: store, bus: bus}, nil
}

// Name returns the channel's configured name.
func (c *Channel) Name() string { return c.cfg.Name }

// Enabled reports the channel's configured enabled flag.
func (c *Channel) Enabled() bool { return c.cfg.Enabled }

// SourceDir returns the directory this channel saves into, for
// introspection.
func (c *Channel) SourceDir() string { return c.cfg.SaveDir }

// Start binds the listener and launches the accept loop. Binding
// failure is fatal for this channel and reported to the caller; other
// channels are unaffected.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.Port))
	if err != nil {
		return errs.Bind("inbound."+c.cfg.Name, "listen", err)
	}

	c.listener = ln
	c.running = true
	c.wg.Add(1)
	go c.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and waits for in-flight connections to
// finish.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	ln := c.listener
	c.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	c.wg.Wait()
}

// IsRunning reports whether the accept loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Channel) acceptLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if !c.IsRunning() {
				return
			}
			slog.Warn("inbound: accept failed", "channel", c.cfg.Name, "err", err)
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleConn(conn)
		}()
	}
}

func (c *Channel) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(defaultReadDeadline))

	reader := bufio.NewReader(conn)
	payload, err := mllp.ReadFrame(reader, 0)
	if err != nil {
		if err == io.EOF {
			return
		}
		slog.Warn("inbound: frame read failed", "channel", c.cfg.Name, "err", err)
		c.writeFallback(conn, "", hl7codec.ReasonParseFail)
		if incErr := c.stats.IncrementErrors(c.cfg.Name); incErr != nil {
			slog.Warn("inbound: stats flush failed", "channel", c.cfg.Name, "err", incErr)
		}
		if pubErr := c.bus.PublishChannelEvent(context.Background(), model.KindInbound, c.cfg.Name, model.EventError, err.Error()); pubErr != nil {
			slog.Warn("inbound: event publish failed", "channel", c.cfg.Name, "err", pubErr)
		}
		return
	}

	// An empty payload arrives as a lone CR, since WriteFrame terminates it.
	if len(bytes.Trim(payload, "\r\n")) == 0 {
		c.writeFallback(conn, "", hl7codec.ReasonEmpty)
		return
	}

	if err := c.persist(payload); err != nil {
		slog.Warn("inbound: persist failed", "channel", c.cfg.Name, "err", err)
		c.writeFallback(conn, "", hl7codec.ReasonParseFail)
		if incErr := c.stats.IncrementErrors(c.cfg.Name); incErr != nil {
			slog.Warn("inbound: stats flush failed", "channel", c.cfg.Name, "err", incErr)
		}
		if pubErr := c.bus.PublishChannelEvent(context.Background(), model.KindInbound, c.cfg.Name, model.EventError, err.Error()); pubErr != nil {
			slog.Warn("inbound: event publish failed", "channel", c.cfg.Name, "err", pubErr)
		}
		return
	}

	c.ack(conn, payload)

	if err := c.stats.IncrementProcessed(c.cfg.Name); err != nil {
		slog.Warn("inbound: stats flush failed", "channel", c.cfg.Name, "err", err)
	}
	if err := c.bus.PublishChannelEvent(context.Background(), model.KindInbound, c.cfg.Name, model.EventProcessed, ""); err != nil {
		slog.Warn("inbound: event publish failed", "channel", c.cfg.Name, "err", err)
	}
}

func (c *Channel) ack(conn net.Conn, payload []byte) {
	controlID := ""
	msg, parseErr := hl7codec.Parse(string(payload))
	if parseErr == nil {
		if v, ok := msg.Field("MSH", 10); ok {
			controlID = v
		}
	}

	if parseErr == nil {
		ack, genErr := hl7codec.GenerateACK(msg, time.Now())
		if genErr == nil {
			c.writeACK(conn, hl7codec.Encode(ack))
			return
		}
	}

	c.writeFallback(conn, controlID, hl7codec.ReasonParseFail)
}

func (c *Channel) writeACK(conn net.Conn, encoded string) {
	w := bufio.NewWriter(conn)
	if err := mllp.WriteFrame(w, []byte(encoded)); err != nil {
		slog.Warn("inbound: ack write failed", "channel", c.cfg.Name, "err", err)
	}
}

func (c *Channel) writeFallback(conn net.Conn, controlID string, reason hl7codec.AckReason) {
	w := bufio.NewWriter(conn)
	fallback := hl7codec.FallbackACK(controlID, reason, time.Now())
	if err := mllp.WriteFrame(w, []byte(fallback)); err != nil {
		slog.Warn("inbound: fallback ack write failed", "channel", c.cfg.Name, "err", err)
	}
}

// persist saves payload under saveDir with the configured prefix/suffix
// and a timestamp filename, appending a monotonic suffix to resolve a
// same-millisecond collision. Exclusive creation means two concurrent
// connections never clobber one another's file.
func (c *Channel) persist(payload []byte) error {
	core := time.Now().Format("20060102_150405.000")
	core = core[:15] + core[16:] // yyyyMMdd_HHmmssSSS without the literal dot

	for n := 0; ; n++ {
		name := fmt.Sprintf("%s%s%s", c.cfg.FilePrefix, core, c.cfg.FileSuffix)
		if n > 0 {
			name = fmt.Sprintf("%s%s_%d%s", c.cfg.FilePrefix, core, n, c.cfg.FileSuffix)
		}
		path := filepath.Join(c.cfg.SaveDir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return errs.IOWrite(c.cfg.Name, "persist", err)
		}
		_, werr := f.Write(payload)
		cerr := f.Close()
		if werr != nil {
			return errs.IOWrite(c.cfg.Name, "persist-write", werr)
		}
		if cerr != nil {
			return errs.IOWrite(c.cfg.Name, "persist-close", cerr)
		}
		return nil
	}
}
