// Package transform resolves a translate channel's transformer.type
// into something that can edit a Message: either a compiled WRAPI
// script, or a native Go transformer from the registry (the "java" type
// from the original config surface, repointed at this process's own
// transformer classes instead of a JVM class loader).
package transform

import (
	"fmt"
	"os"

	"github.com/localbridge/hl7bridge/internal/channelconfig"
	"github.com/localbridge/hl7bridge/internal/hl7codec"
	"github.com/localbridge/hl7bridge/internal/wrapi"
)

// Transformer edits one message, returning the transformed result.
type Transformer interface {
	Transform(msg *hl7codec.Message) (*hl7codec.Message, error)
}

// WrapiTransformer runs a compiled WRAPI script against each message.
type WrapiTransformer struct {
	Script        *wrapi.Script
	CreateMissing bool
}

func (t *WrapiTransformer) Transform(msg *hl7codec.Message) (*hl7codec.Message, error) {
	return t.Script.Run(msg, t.CreateMissing)
}

// NativeFactory builds a native transformer instance.
type NativeFactory func() Transformer

var nativeRegistry = map[string]NativeFactory{}

// Register adds a native transformer factory under class, the value a
// translate channel's transformer.class key must match. Intended to be
// called from package init functions, mirroring the retrieval pack's
// component-registration pattern.
func Register(class string, factory NativeFactory) {
	nativeRegistry[class] = factory
}

// Build resolves cfg into a Transformer. When neither type nor script is
// set, the result passes each message through unchanged. For type "wrapi"
// (the default when Type is empty), script is resolved relative to
// yamlDir/confRoot and compiled. For type "java", class is looked up in the native
// registry. An unknown class, or an unreadable/unparseable script, is a
// ConfigError that should fail channel start.
func Build(cfg channelconfig.TransformerConfig, confRoot, yamlDir string) (Transformer, error) {
	switch cfg.Type {
	case "", "wrapi":
		if cfg.Type == "" && cfg.Script == "" {
			return &WrapiTransformer{Script: &wrapi.Script{}}, nil
		}
		return buildWrapi(cfg, confRoot, yamlDir)
	case "java":
		factory, ok := nativeRegistry[cfg.Class]
		if !ok {
			return nil, fmt.Errorf("transform: unknown native transformer class %q", cfg.Class)
		}
		return factory(), nil
	default:
		return nil, fmt.Errorf("transform: unknown transformer type %q", cfg.Type)
	}
}

func buildWrapi(cfg channelconfig.TransformerConfig, confRoot, yamlDir string) (Transformer, error) {
	if cfg.Script == "" {
		return nil, fmt.Errorf("transform: wrapi transformer missing script")
	}
	path, err := channelconfig.ResolveScriptPath(confRoot, yamlDir, cfg.Script)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transform: read script %s: %w", path, err)
	}
	script, err := wrapi.Compile(string(data))
	if err != nil {
		return nil, fmt.Errorf("transform: compile script %s: %w", path, err)
	}
	return &WrapiTransformer{Script: script, CreateMissing: cfg.CreateMissing}, nil
}
