package translate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/stats"
)

const sampleHL7 = "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\rPID|1\r"

func newTestStore(t *testing.T) *stats.Store {
	t.Helper()
	s, err := stats.Open(filepath.Join(t.TempDir(), "stats.json"))
	require.NoError(t, err)
	return s
}

func TestAttemptWritesToEveryDestination(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	outA := filepath.Join(root, "outa")
	outB := filepath.Join(root, "outb")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	inFile := filepath.Join(inDir, "msg1.hl7")
	require.NoError(t, os.WriteFile(inFile, []byte(sampleHL7), 0o644))

	cfg := channelconfig.TranslateConfig{
		Name:         "ADT",
		InputDir:     inDir,
		Destinations: channelconfig.StringList{outA, outB},
		InputPattern: "*.hl7",
	}
	ch, err := New(cfg, root, root, newTestStore(t), nil)
	require.NoError(t, err)

	require.NoError(t, ch.attempt(inFile))
	assert.FileExists(t, filepath.Join(outA, "msg1.hl7"))
	assert.FileExists(t, filepath.Join(outB, "msg1.hl7"))
}

func TestAttemptRollsBackOnPartialFailure(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	outA := filepath.Join(root, "outa")
	outB := filepath.Join(root, "outb")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	// outB is a plain file, not a directory, so MkdirAll(outB) always fails
	// regardless of the test process's privileges.
	require.NoError(t, os.WriteFile(outB, []byte("not a directory"), 0o644))
	inFile := filepath.Join(inDir, "msg1.hl7")
	require.NoError(t, os.WriteFile(inFile, []byte(sampleHL7), 0o644))

	cfg := channelconfig.TranslateConfig{
		Name:         "ADT",
		InputDir:     inDir,
		Destinations: channelconfig.StringList{outA, outB},
		InputPattern: "*.hl7",
	}
	ch, err := New(cfg, root, root, newTestStore(t), nil)
	require.NoError(t, err)

	err = ch.attempt(inFile)
	require.Error(t, err)

	entries, _ := os.ReadDir(outA)
	assert.Empty(t, entries, "destination written before the failure must be rolled back")
}

func TestProcessFileSuccessDisposition(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	outDir := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	inFile := filepath.Join(inDir, "msg1.hl7")
	require.NoError(t, os.WriteFile(inFile, []byte(sampleHL7), 0o644))

	store := newTestStore(t)
	cfg := channelconfig.TranslateConfig{
		Name:         "ADT",
		InputDir:     inDir,
		Destinations: channelconfig.StringList{outDir},
		InputPattern: "*.hl7",
	}
	ch, err := New(cfg, root, root, store, nil)
	require.NoError(t, err)

	ch.processFile(context.Background(), inFile)

	assert.NoFileExists(t, inFile)
	assert.FileExists(t, filepath.Join(outDir, "msg1.hl7"))
	assert.Equal(t, uint64(1), store.Get("ADT").Processed)
}

func TestProcessFileErrorDispositionWritesSidecar(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	errDir := filepath.Join(root, "err")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	inFile := filepath.Join(inDir, "bad.hl7")
	require.NoError(t, os.WriteFile(inFile, []byte("NOT-HL7"), 0o644))

	store := newTestStore(t)
	cfg := channelconfig.TranslateConfig{
		Name:         "ADT",
		InputDir:     inDir,
		Destinations: channelconfig.StringList{filepath.Join(root, "out")},
		InputPattern: "*.hl7",
		ErrorDir:     errDir,
	}
	ch, err := New(cfg, root, root, store, nil)
	require.NoError(t, err)

	ch.processFile(context.Background(), inFile)

	assert.NoFileExists(t, inFile)
	assert.FileExists(t, filepath.Join(errDir, "bad.hl7"))
	assert.FileExists(t, filepath.Join(errDir, "bad.hl7.error.txt"))
	assert.Equal(t, uint64(1), store.Get("ADT").Errors)
}

func TestStartStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	require.NoError(t, os.MkdirAll(inDir, 0o755))

	cfg := channelconfig.TranslateConfig{
		Name:           "ADT",
		InputDir:       inDir,
		Destinations:   channelconfig.StringList{filepath.Join(root, "out")},
		InputPattern:   "*.hl7",
		PollIntervalMs: 200,
	}
	ch, err := New(cfg, root, root, newTestStore(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch.Start(ctx)
	ch.Start(ctx) // no-op
	assert.True(t, ch.IsRunning())

	done := make(chan struct{})
	go func() {
		ch.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
	assert.False(t, ch.IsRunning())

	ch.Stop() // no-op
}
