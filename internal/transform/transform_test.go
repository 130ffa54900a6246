package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/hl7codec"
)

func TestBuildWrapiResolvesAndCompiles(t *testing.T) {
	root := t.TempDir()
	yamlDir := filepath.Join(root, "channels")
	require.NoError(t, os.MkdirAll(yamlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(yamlDir, "cleanup.wrapi"), []byte(`SET PID-5 "X"
SAVE`), 0o644))

	tr, err := Build(channelconfig.TransformerConfig{Type: "wrapi", Script: "cleanup.wrapi", CreateMissing: true}, root, yamlDir)
	require.NoError(t, err)

	msg, err := hl7codec.Parse("MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\rPID|1\r")
	require.NoError(t, err)
	out, err := tr.Transform(msg)
	require.NoError(t, err)

	v, ok := out.Field("PID", 5)
	require.True(t, ok)
	assert.Equal(t, "X", v)
}

func TestBuildJavaTypeUnknownClassIsError(t *testing.T) {
	_, err := Build(channelconfig.TransformerConfig{Type: "java", Class: "nope"}, "/conf", "/conf/channels")
	assert.Error(t, err)
}

func TestAdtCleanupTransformer(t *testing.T) {
	tr, err := Build(channelconfig.TransformerConfig{Type: "java", Class: "localbridge.AdtCleanupTransformer"}, "/conf", "/conf/channels")
	require.NoError(t, err)

	input := "MSH|^~\\&|S|F|D|F|20250101010101||ADT^A01|MSG001|P|2.5\r" +
		"PID|1||A||LAST^FIRST|MAIDEN|19800101|M\r" +
		"IN1|1|X\r"
	msg, err := hl7codec.Parse(input)
	require.NoError(t, err)

	out, err := tr.Transform(msg)
	require.NoError(t, err)
	text := hl7codec.Encode(out)

	assert.NotContains(t, text, "IN1|")
	app, ok := out.Field("MSH", 4)
	require.True(t, ok)
	assert.Equal(t, "MAIN_HOSPITAL", app)
	assert.Contains(t, text, "NTE|1|PROCESSED|ADT_CLEANUP")
	assert.Contains(t, text, "ZXT|1|PROCESSED|ADT_CLEANUP")
}
