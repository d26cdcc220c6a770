package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is a named part of a rendered prompt. A scalar YAML value becomes
// Text directly; a mapping may set text, append, format, heading and plain.
//
// Append names a data key whose value is written after Text. When that
// value is empty the whole section is dropped. Format "yaml" wraps the
// appended value in a fenced block. Plain sections are written without a
// heading.
type Section struct {
	Name    string
	Text    string
	Append  string
	Format  string
	Heading string
	Plain   bool
}

type sectionDetail struct {
	Text    string `yaml:"text"`
	Append  string `yaml:"append"`
	Format  string `yaml:"format"`
	Heading string `yaml:"heading"`
	Plain   bool   `yaml:"plain"`
}

// Template is an ordered list of sections, written in YAML as a sequence of
// single-key mappings.
type Template []Section

// UnmarshalYAML decodes a sequence of single-key mappings.
func (t *Template) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("prompt template must be a YAML sequence, got %v", value.Kind)
	}
	sections := make(Template, 0, len(value.Content))
	for i, item := range value.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) < 2 {
			return fmt.Errorf("section %d: expected a single-key mapping", i)
		}
		keyNode, valNode := item.Content[0], item.Content[1]
		sec := Section{Name: keyNode.Value}

		switch valNode.Kind {
		case yaml.ScalarNode:
			sec.Text = valNode.Value
		case yaml.MappingNode:
			var detail sectionDetail
			if err := valNode.Decode(&detail); err != nil {
				return fmt.Errorf("section %q: %w", sec.Name, err)
			}
			sec.Text = detail.Text
			sec.Append = detail.Append
			sec.Format = detail.Format
			sec.Heading = detail.Heading
			sec.Plain = detail.Plain
		default:
			return fmt.Errorf("section %q: unexpected YAML node kind %v", sec.Name, valNode.Kind)
		}
		sections = append(sections, sec)
	}
	*t = sections
	return nil
}

// ParseTemplate parses a YAML document into a Template.
func ParseTemplate(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("prompt template has no sections")
	}
	return t, nil
}

func (s Section) heading() string {
	if s.Heading != "" {
		return s.Heading
	}
	return "# " + strings.ToUpper(strings.ReplaceAll(s.Name, "_", " "))
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// substitute replaces {key} placeholders in a single pass, so values that
// themselves contain braces are never expanded again. Unknown keys stay.
func substitute(text string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := data[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Render assembles the prompt. Sections are separated by a blank line and
// the result is trimmed.
func (t Template) Render(data map[string]string) string {
	parts := make([]string, 0, len(t))
	for _, sec := range t {
		var val string
		if sec.Append != "" {
			val = strings.TrimSpace(data[sec.Append])
			if val == "" {
				continue
			}
		}

		var b strings.Builder
		if !sec.Plain {
			b.WriteString(sec.heading())
			b.WriteString("\n\n")
		}
		body := strings.TrimRight(substitute(sec.Text, data), "\n")
		b.WriteString(body)

		if sec.Append != "" {
			if body != "" {
				b.WriteString("\n")
			}
			switch sec.Format {
			case "yaml":
				b.WriteString("```yaml\n")
				b.WriteString(val)
				b.WriteString("\n```")
			default:
				b.WriteString(val)
			}
		}
		parts = append(parts, b.String())
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
