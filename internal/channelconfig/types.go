// Package channelconfig parses the three channel YAML schemas (translate,
// inbound, outbound) and applies their defaults.
package channelconfig

import "fmt"

// TransformerConfig describes how a translate channel edits each message.
type TransformerConfig struct {
	Type            string `yaml:"type"`
	Script          string `yaml:"script"`
	Class           string `yaml:"class"`
	CreateMissing   bool   `yaml:"createMissing"`
	ValidateProfile bool   `yaml:"validateProfile"`
}

// ErrorHandlingConfig configures a translate channel's retry-and-disposition
// policy.
type ErrorHandlingConfig struct {
	RetryCount   int  `yaml:"retryCount"`
	RetryDelayMs int  `yaml:"retryDelayMs"`
	MoveToError  bool `yaml:"moveToError"`
}

// ArchiveConfig configures what happens to a file on success.
type ArchiveConfig struct {
	Enabled  bool `yaml:"enabled"`
	Compress bool `yaml:"compress"`
}

// TranslateConfig is one `conf/channels/*.yaml` entry.
type TranslateConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	InputDir   string `yaml:"inputDir"`
	ErrorDir   string `yaml:"errorDir"`
	ArchiveDir string `yaml:"archiveDir"`

	Destinations StringList `yaml:"destinations"`
	OutputDir    string     `yaml:"outputDir"`

	InputPattern   string `yaml:"inputPattern"`
	PollIntervalMs int    `yaml:"pollIntervalMs"`
	BatchSize      int    `yaml:"batchSize"`

	Transformer   TransformerConfig   `yaml:"transformer"`
	ErrorHandling ErrorHandlingConfig `yaml:"errorHandling"`
	Archive       ArchiveConfig       `yaml:"archive"`

	// YamlDir is the directory the YAML file was loaded from, set by
	// LoadTranslate. It is the first candidate ResolveScriptPath tries.
	YamlDir string `yaml:"-"`
}

// applyDefaults fills in default values and resolves the
// destinations/outputDir legacy-mirror rule.
func (c *TranslateConfig) applyDefaults() {
	if c.InputPattern == "" {
		c.InputPattern = "*.hl7"
	}
	if c.PollIntervalMs < 200 {
		c.PollIntervalMs = 1000
	}
	if c.BatchSize < 1 {
		c.BatchSize = 10
	}

	switch {
	case len(c.Destinations) > 0:
		c.OutputDir = c.Destinations[0]
	case c.OutputDir != "":
		c.Destinations = StringList{c.OutputDir}
	}
}

// Validate checks the required fields of a TranslateConfig.
func (c *TranslateConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channelconfig: translate channel missing name")
	}
	if c.InputDir == "" {
		return fmt.Errorf("channelconfig: translate channel %q missing inputDir", c.Name)
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("channelconfig: translate channel %q has no destinations", c.Name)
	}
	if c.Transformer.Type != "" && c.Transformer.Type != "wrapi" && c.Transformer.Type != "java" {
		return fmt.Errorf("channelconfig: translate channel %q has unknown transformer type %q", c.Name, c.Transformer.Type)
	}
	return nil
}

// InboundConfig is one `conf/channels/Inbound/*.yaml` entry.
type InboundConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	Port       int    `yaml:"port"`
	SaveDir    string `yaml:"saveDir"`
	FilePrefix string `yaml:"filePrefix"`
	FileSuffix string `yaml:"fileSuffix"`
	AutoAck    bool   `yaml:"autoAck"`
}

func (c *InboundConfig) applyDefaults() {
	if c.FileSuffix == "" {
		c.FileSuffix = ".hl7"
	}
}

// Validate checks the required fields of an InboundConfig.
func (c *InboundConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channelconfig: inbound channel missing name")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("channelconfig: inbound channel %q has invalid port %d", c.Name, c.Port)
	}
	if c.SaveDir == "" {
		return fmt.Errorf("channelconfig: inbound channel %q missing saveDir", c.Name)
	}
	return nil
}

// OutboundConfig is one `conf/channels/Outbound/*.yaml` entry.
type OutboundConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	SourceDir        string `yaml:"sourceDir"`
	Pattern          string `yaml:"pattern"`
	WaitForAck       bool   `yaml:"waitForAck"`
	ConnectTimeoutMs int    `yaml:"connectTimeoutMs"`
	ReadTimeoutMs    int    `yaml:"readTimeoutMs"`
	PollIntervalMs   int    `yaml:"pollIntervalMs"`
	ConcurrentSends  int    `yaml:"concurrentSends"`
	ErrorDir         string `yaml:"errorDir"`
	ArchiveDir       string `yaml:"archiveDir"`
}

func (c *OutboundConfig) applyDefaults() {
	if c.Pattern == "" {
		c.Pattern = "*.hl7"
	}
	if c.ConnectTimeoutMs <= 0 {
		c.ConnectTimeoutMs = 5000
	}
	if c.ReadTimeoutMs <= 0 {
		c.ReadTimeoutMs = 5000
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 1000
	}
	if c.ConcurrentSends < 1 {
		c.ConcurrentSends = 1
	}
}

// Validate checks the required fields of an OutboundConfig.
func (c *OutboundConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channelconfig: outbound channel missing name")
	}
	if c.Host == "" {
		return fmt.Errorf("channelconfig: outbound channel %q missing host", c.Name)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("channelconfig: outbound channel %q has invalid port %d", c.Name, c.Port)
	}
	if c.SourceDir == "" {
		return fmt.Errorf("channelconfig: outbound channel %q missing sourceDir", c.Name)
	}
	return nil
}
