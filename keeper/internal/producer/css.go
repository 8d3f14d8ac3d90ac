package producer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// A practical CSS subset: tag, #id, .class, [attr], [attr=value],
// descendant combinator (whitespace) and selector groups (comma).

type attrSel struct {
	name, value string
	hasValue    bool
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSel
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && isIdent(s[i]) {
			i++
		}
		return s[start:i]
	}
	c.tag = strings.ToLower(readIdent())
	if c.tag == "" && i < len(s) && s[i] == '*' {
		c.tag = "*"
		i++
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			c.id = readIdent()
		case '.':
			i++
			c.classes = append(c.classes, readIdent())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("producer: unclosed [ in %q", s)
			}
			body := s[i+1 : i+end]
			i += end + 1
			a := attrSel{name: body}
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				a = attrSel{
					name:     strings.TrimSpace(body[:eq]),
					value:    strings.Trim(strings.TrimSpace(body[eq+1:]), `'"`),
					hasValue: true,
				}
			}
			c.attrs = append(c.attrs, a)
		default:
			return c, fmt.Errorf("producer: unexpected %q in selector %q", s[i], s)
		}
	}
	return c, nil
}

func isIdent(b byte) bool {
	return b == '-' || b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" {
		if v, _ := attr(n, "id"); v != c.id {
			return false
		}
	}
	for _, cl := range c.classes {
		if !hasClass(n, cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := attr(n, a.name)
		if !ok || a.hasValue && v != a.value {
			return false
		}
	}
	return true
}

// selector is a parsed selector group.
type selector [][]compound

func parseSelector(s string) (selector, error) {
	var out selector
	for _, group := range strings.Split(s, ",") {
		var chain []compound
		for _, part := range strings.Fields(group) {
			c, err := parseCompound(part)
			if err != nil {
				return nil, err
			}
			chain = append(chain, c)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("producer: empty selector in %q", s)
		}
		out = append(out, chain)
	}
	return out, nil
}

// selectAll returns the matches of every group, without duplicates, in
// the order they were found.
func (sel selector) selectAll(root *html.Node) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	for _, chain := range sel {
		current := []*html.Node{root}
		for _, c := range chain {
			var next []*html.Node
			stepSeen := make(map[*html.Node]bool)
			for _, from := range current {
				walkElements(from, func(n *html.Node) {
					if !stepSeen[n] && c.matches(n) {
						stepSeen[n] = true
						next = append(next, n)
					}
				})
			}
			current = next
		}
		for _, n := range current {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}
