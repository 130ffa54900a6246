package mllp

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameInsertsMissingCR(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteFrame(w, []byte("MSH|^~\\&|A")))

	got := buf.Bytes()
	assert.Equal(t, byte(SB), got[0])
	assert.Equal(t, byte(CR), got[len(got)-3])
	assert.Equal(t, byte(EB), got[len(got)-2])
	assert.Equal(t, byte(CR), got[len(got)-1])
}

func TestWriteFrameKeepsExistingCR(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	payload := []byte("MSH|^~\\&|A\r")
	require.NoError(t, WriteFrame(w, payload))

	got := buf.Bytes()
	// SB + payload (already CR-terminated) + EB + CR, no extra CR inserted.
	assert.Equal(t, len(payload)+3, len(got))
}

func TestReadFrameSkipsLeadingNoise(t *testing.T) {
	raw := append([]byte{0x00, 0x01}, SB)
	raw = append(raw, []byte("hello")...)
	raw = append(raw, EB, CR)

	r := bufio.NewReader(bytes.NewReader(raw))
	got, err := ReadFrame(r, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestReadFrameToleratesMissingTrailingCR(t *testing.T) {
	raw := []byte{SB}
	raw = append(raw, []byte("hello")...)
	raw = append(raw, EB) // no trailing CR, stream just ends

	r := bufio.NewReader(bytes.NewReader(raw))
	got, err := ReadFrame(r, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestReadFrameErrorsOnCleanEOFBeforeSB(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	_, err := ReadFrame(r, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameErrorsOnMidFrameClose(t *testing.T) {
	raw := []byte{SB}
	raw = append(raw, []byte("partial")...)
	r := bufio.NewReader(bytes.NewReader(raw))
	_, err := ReadFrame(r, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameEnforcesMaxBytes(t *testing.T) {
	raw := []byte{SB}
	raw = append(raw, bytes.Repeat([]byte("x"), 10)...)
	raw = append(raw, EB, CR)

	r := bufio.NewReader(bytes.NewReader(raw))
	_, err := ReadFrame(r, 5)
	assert.ErrorIs(t, err, ErrMaxBytesExceeded)
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	payload := []byte("MSH|^~\\&|LOCALBRIDGE\rPID|1\r")
	require.NoError(t, WriteFrame(w, payload))

	r := bufio.NewReader(&buf)
	got, err := ReadFrame(r, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
