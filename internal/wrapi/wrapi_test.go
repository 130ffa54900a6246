package wrapi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/hl7bridge/internal/hl7codec"
)

const pipelineInput = "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r" +
	"PID|1||A||LAST^FIRST|F6|F7|F8|F9|F10|F11|F12|555-1^^^~555-2^^^~555-3^^^\r" +
	"IN1|1|X\r"

const pipelineScript = `DELSEG IN1
CLEAR PID-5
TRUNC PID-13,2
ADDSEG after PID "NTE|1|OK"
ADDSEG "ZXT|1|OK"
SAVE`

func runScript(t *testing.T, script, input string) *hl7codec.Message {
	t.Helper()
	s, err := Compile(script)
	require.NoError(t, err)
	msg, err := hl7codec.Parse(input)
	require.NoError(t, err)
	out, err := s.Run(msg, false)
	require.NoError(t, err)
	return out
}

func TestPipelineScenario(t *testing.T) {
	out := runScript(t, pipelineScript, pipelineInput)
	text := hl7codec.Encode(out)

	assert.NotContains(t, text, "IN1|")

	pid5, ok := out.Field("PID", 5)
	require.True(t, ok)
	assert.Equal(t, "", pid5)

	pid13, ok := out.Field("PID", 13)
	require.True(t, ok)
	assert.Equal(t, "555-1^^^~555-2^^^", pid13)

	assert.Equal(t, 1, strings.Count(text, "NTE|1|OK"))
	assert.Equal(t, 1, strings.Count(text, "ZXT|1|OK"))

	lines := strings.Split(strings.TrimSuffix(text, "\r"), "\r")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[1], "PID|"))
	assert.True(t, strings.HasPrefix(lines[2], "NTE|1|OK"))
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "ZXT|1|OK"))
}

func TestAddSegIsIdempotent(t *testing.T) {
	once := runScript(t, pipelineScript, pipelineInput)
	twice, err := func() (*hl7codec.Message, error) {
		s, err := Compile(pipelineScript)
		require.NoError(t, err)
		return s.Run(once, false)
	}()
	require.NoError(t, err)

	text := hl7codec.Encode(twice)
	assert.Equal(t, 1, strings.Count(text, "NTE|1|OK"))
	assert.Equal(t, 1, strings.Count(text, "ZXT|1|OK"))
}

func TestClearBlanksAllOccurrencesOnlyThatField(t *testing.T) {
	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r" +
		"OBX|1|ST|A||VAL1\r" +
		"OBX|2|ST|B||VAL2\r"
	out := runScript(t, "CLEAR OBX-5\nSAVE", input)
	text := hl7codec.Encode(out)
	assert.Equal(t, "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r"+
		"OBX|1|ST|A||\r"+
		"OBX|2|ST|B||\r", text)
}

func TestSetCreatesMissingSegmentWhenAllowed(t *testing.T) {
	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r"
	s, err := Compile(`SET ZZZ-2 "hello"`)
	require.NoError(t, err)
	msg, err := hl7codec.Parse(input)
	require.NoError(t, err)

	out, err := s.Run(msg, true)
	require.NoError(t, err)
	v, ok := out.Field("ZZZ", 2)
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestSetSkipsMissingSegmentWhenNotAllowed(t *testing.T) {
	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r"
	s, err := Compile(`SET ZZZ-2 "hello"`)
	require.NoError(t, err)
	msg, err := hl7codec.Parse(input)
	require.NoError(t, err)

	out, err := s.Run(msg, false)
	require.NoError(t, err)
	_, ok := out.Field("ZZZ", 2)
	assert.False(t, ok)
}

func TestCopyNeverFailsOnMissingSource(t *testing.T) {
	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r"
	s, err := Compile(`COPY PID-5 -> PID-6
SAVE`)
	require.NoError(t, err)
	msg, err := hl7codec.Parse(input)
	require.NoError(t, err)

	_, err = s.Run(msg, false)
	assert.NoError(t, err)
}

func TestAddSegSkipsSilentlyWhenAnchorMissing(t *testing.T) {
	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r"
	out := runScript(t, `ADDSEG after ZZZ "NTE|1|OK"
SAVE`, input)
	assert.NotContains(t, hl7codec.Encode(out), "NTE|1|OK")
}

func TestCompileFailsOnBadSyntax(t *testing.T) {
	_, err := Compile("SET PID-5 no-quotes")
	assert.Error(t, err)
}
