package mermaidascii

import (
	"fmt"
	"strings"
)

// Diagram is a parsed mermaid diagram that can render itself to text.
type Diagram interface {
	Parse(input string) error
	Render(config *Config) (string, error)
	Type() string
}

// Config controls rendering.
type Config struct {
	// UseAscii replaces box-drawing characters with plain ASCII.
	UseAscii bool
	// StyleType selects the output style ("cli" is the only style).
	StyleType string
}

// DefaultConfig returns the default rendering configuration.
func DefaultConfig() *Config {
	return &Config{UseAscii: false, StyleType: "cli"}
}

// IsSequenceDiagram reports whether the input declares a sequence diagram.
func IsSequenceDiagram(input string) bool {
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		return strings.HasPrefix(trimmed, "sequenceDiagram")
	}
	return false
}

// SequenceDiagram renders sequence diagrams as a plain message listing.
type SequenceDiagram struct {
	messages []string
}

func (sd *SequenceDiagram) Parse(input string) error {
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "sequenceDiagram" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		sd.messages = append(sd.messages, trimmed)
	}
	return nil
}

func (sd *SequenceDiagram) Render(config *Config) (string, error) {
	return strings.Join(sd.messages, "\n"), nil
}

type graphEdge struct {
	from  string
	to    string
	label string
}

// graphProperties is the parsed form of a graph/flowchart diagram.
type graphProperties struct {
	direction string
	nodes     []string
	nodeSet   map[string]bool
	edges     []graphEdge

	styleType string
	useAscii  bool
}

func (p *graphProperties) addNode(name string) {
	if name == "" || p.nodeSet[name] {
		return
	}
	p.nodeSet[name] = true
	p.nodes = append(p.nodes, name)
}

// mermaidFileToMap parses mermaid graph syntax: a "graph TD|LR" header,
// bare node lines, and "A -->|label| B" edge lines.
func mermaidFileToMap(input, styleType string) (*graphProperties, error) {
	p := &graphProperties{
		direction: "LR",
		nodeSet:   make(map[string]bool),
		styleType: styleType,
	}

	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}

		if strings.HasPrefix(trimmed, "graph ") || strings.HasPrefix(trimmed, "flowchart ") {
			fields := strings.Fields(trimmed)
			if len(fields) > 1 {
				p.direction = fields[1]
				graphDirection = p.direction
			}
			continue
		}

		if strings.Contains(trimmed, "-->") {
			from, to, label, err := parseEdge(trimmed)
			if err != nil {
				return nil, err
			}
			p.addNode(from)
			p.addNode(to)
			p.edges = append(p.edges, graphEdge{from: from, to: to, label: label})
			continue
		}

		// Bare node declaration.
		p.addNode(trimmed)
	}

	if len(p.nodes) == 0 {
		return nil, fmt.Errorf("diagram declares no nodes")
	}
	return p, nil
}

// parseEdge splits "A -->|label| B" (label optional) into its parts.
func parseEdge(line string) (from, to, label string, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("malformed edge line: %q", line)
	}
	from = strings.TrimSpace(parts[0])
	rest := strings.TrimSpace(parts[1])

	if strings.HasPrefix(rest, "|") {
		end := strings.Index(rest[1:], "|")
		if end < 0 {
			return "", "", "", fmt.Errorf("unterminated edge label: %q", line)
		}
		label = strings.TrimSpace(rest[1 : end+1])
		rest = strings.TrimSpace(rest[end+2:])
	}
	to = rest
	if from == "" || to == "" {
		return "", "", "", fmt.Errorf("edge with empty endpoint: %q", line)
	}
	return from, to, label, nil
}

// charset is the box-drawing alphabet for one rendering mode.
type charset struct {
	topLeft, topRight       string
	bottomLeft, bottomRight string
	horizontal, vertical    string
	teeDown, arrowDown      string
}

var unicodeChars = charset{
	topLeft: "┌", topRight: "┐",
	bottomLeft: "└", bottomRight: "┘",
	horizontal: "─", vertical: "│",
	teeDown: "┬", arrowDown: "▼",
}

var asciiChars = charset{
	topLeft: "+", topRight: "+",
	bottomLeft: "+", bottomRight: "+",
	horizontal: "-", vertical: "|",
	teeDown: "+", arrowDown: "v",
}

// drawMap renders the graph as stacked boxes: each root's subtree is
// drawn depth-first with labeled connectors, and edges that would revisit
// an already drawn node are listed separately at the end.
func drawMap(p *graphProperties) string {
	chars := unicodeChars
	if p.useAscii {
		chars = asciiChars
	}

	children := make(map[string][]graphEdge)
	inDegree := make(map[string]int)
	for _, e := range p.edges {
		children[e.from] = append(children[e.from], e)
		inDegree[e.to]++
	}

	var sb strings.Builder
	drawn := make(map[string]bool)
	var extra []graphEdge

	var draw func(node string, indent string)
	draw = func(node string, indent string) {
		drawn[node] = true
		writeBox(&sb, node, indent, chars)
		for _, e := range children[node] {
			if drawn[e.to] {
				extra = append(extra, e)
				continue
			}
			connector := indent + "  " + chars.vertical
			if e.label != "" {
				connector += " " + e.label
			}
			sb.WriteString(connector + "\n")
			sb.WriteString(indent + "  " + chars.arrowDown + "\n")
			draw(e.to, indent)
		}
	}

	for _, node := range p.nodes {
		if inDegree[node] == 0 && !drawn[node] {
			draw(node, "")
			sb.WriteString("\n")
		}
	}
	// Everything left is cyclic; draw from the first undrawn node.
	for _, node := range p.nodes {
		if !drawn[node] {
			draw(node, "")
			sb.WriteString("\n")
		}
	}

	for _, e := range extra {
		arrow := chars.horizontal + chars.horizontal
		if e.label != "" {
			sb.WriteString(fmt.Sprintf("%s %s%s %s %s> %s\n", e.from, arrow, arrow, e.label, chars.horizontal, e.to))
		} else {
			sb.WriteString(fmt.Sprintf("%s %s%s%s> %s\n", e.from, arrow, arrow, chars.horizontal, e.to))
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeBox(sb *strings.Builder, label, indent string, chars charset) {
	pad := boxBorderPadding
	inner := strings.Repeat(" ", pad) + label + strings.Repeat(" ", pad)
	width := len([]rune(inner))

	sb.WriteString(indent + chars.topLeft + strings.Repeat(chars.horizontal, width) + chars.topRight + "\n")
	sb.WriteString(indent + chars.vertical + inner + chars.vertical + "\n")
	sb.WriteString(indent + chars.bottomLeft + strings.Repeat(chars.horizontal, width) + chars.bottomRight + "\n")
}
