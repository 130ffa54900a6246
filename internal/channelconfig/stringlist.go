package channelconfig

import "gopkg.in/yaml.v3"

// StringList unmarshals a YAML sequence that may mix shorthand scalar
// entries (`- /out/a`) with block-form entries (`- path: /out/a`).
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return nil
	}
	out := make(StringList, 0, len(value.Content))
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			var block struct {
				Path string `yaml:"path"`
			}
			if err := item.Decode(&block); err != nil {
				return err
			}
			if block.Path != "" {
				out = append(out, block.Path)
			}
		}
	}
	*l = out
	return nil
}
