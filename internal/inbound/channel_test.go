package inbound

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/mllp"
	"github.com/localbridge/hl7bridge/internal/stats"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newChannel(t *testing.T, cfg channelconfig.InboundConfig) (*Channel, *stats.Store) {
	t.Helper()
	store, err := stats.Open(filepath.Join(t.TempDir(), "stats.json"))
	require.NoError(t, err)
	ch, err := New(cfg, store, nil)
	require.NoError(t, err)
	return ch, store
}

func TestReceiveAndSaveScenario(t *testing.T) {
	saveDir := t.TempDir()
	port := freePort(t)
	cfg := channelconfig.InboundConfig{
		Name:       "RX1",
		Port:       port,
		SaveDir:    saveDir,
		FilePrefix: "ADT_",
		FileSuffix: ".hl7",
	}
	ch, store := newChannel(t, cfg)
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop()

	time.Sleep(50 * time.Millisecond)
	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer conn.Close()

	payload := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\rPID|1||123^^^H~456^^^H||DOE^JOHN\r"
	w := bufio.NewWriter(conn)
	require.NoError(t, mllp.WriteFrame(w, []byte(payload)))

	reply, err := mllp.ReadFrame(bufio.NewReader(conn), 0)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`(?s)^MSH\|.*\rMSA\|AA\|MSG001\|.*\r$`), string(reply))

	time.Sleep(50 * time.Millisecond)
	entries, err := os.ReadDir(saveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, regexp.MustCompile(`^ADT_.*\.hl7$`), entries[0].Name())

	saved, err := os.ReadFile(filepath.Join(saveDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, payload, string(saved))

	assert.Equal(t, uint64(1), store.Get("RX1").Processed)
}

func TestEmptyFrameGetsFallbackAckWithoutErrorCount(t *testing.T) {
	saveDir := t.TempDir()
	port := freePort(t)
	cfg := channelconfig.InboundConfig{Name: "RX2", Port: port, SaveDir: saveDir, FileSuffix: ".hl7"}
	ch, store := newChannel(t, cfg)
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop()

	time.Sleep(50 * time.Millisecond)
	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer conn.Close()

	w := bufio.NewWriter(conn)
	require.NoError(t, mllp.WriteFrame(w, []byte{}))

	reply, err := mllp.ReadFrame(bufio.NewReader(conn), 0)
	require.NoError(t, err)
	assert.Contains(t, string(reply), "EMPTY")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), store.Get("RX2").Errors)
}

func TestCollidingFilenamesGetMonotonicSuffix(t *testing.T) {
	saveDir := t.TempDir()
	cfg := channelconfig.InboundConfig{Name: "RX3", SaveDir: saveDir, FileSuffix: ".hl7"}
	ch, _ := newChannel(t, cfg)

	require.NoError(t, ch.persist([]byte("a")))
	require.NoError(t, ch.persist([]byte("b")))
	require.NoError(t, ch.persist([]byte("c")))

	entries, err := os.ReadDir(saveDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
