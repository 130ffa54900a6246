package channelconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadTranslate scans confRoot/channels/*.yaml for translate channels.
func LoadTranslate(confRoot string) ([]TranslateConfig, error) {
	paths, err := glob(filepath.Join(confRoot, "channels", "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []TranslateConfig
	for _, path := range paths {
		var cfg TranslateConfig
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
		cfg.YamlDir = filepath.Dir(path)
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadInbound scans confRoot/channels/Inbound/*.yaml for inbound channels.
func LoadInbound(confRoot string) ([]InboundConfig, error) {
	paths, err := glob(filepath.Join(confRoot, "channels", "Inbound", "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []InboundConfig
	for _, path := range paths {
		var cfg InboundConfig
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadOutbound scans confRoot/channels/Outbound/*.yaml for outbound channels.
func LoadOutbound(confRoot string) ([]OutboundConfig, error) {
	paths, err := glob(filepath.Join(confRoot, "channels", "Outbound", "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []OutboundConfig
	for _, path := range paths {
		var cfg OutboundConfig
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// ResolveScriptPath finds a WRAPI script named by a translate channel's
// transformer.script value, trying (in order) the path relative to the
// YAML file's own directory, then confRoot/transformers/, then the
// current working directory. The first existing match wins.
func ResolveScriptPath(confRoot, yamlDir, script string) (string, error) {
	if filepath.IsAbs(script) {
		if _, err := os.Stat(script); err == nil {
			return script, nil
		}
	}

	candidates := []string{
		filepath.Join(yamlDir, script),
		filepath.Join(confRoot, "transformers", script),
		script,
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("channelconfig: script %q not found relative to %s, %s/transformers, or cwd", script, yamlDir, confRoot)
}

func glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("channelconfig: glob %q: %w", pattern, err)
	}
	return matches, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("channelconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("channelconfig: parse %s: %w", path, err)
	}
	return nil
}
