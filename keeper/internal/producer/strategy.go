package producer

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
)

// Strategy extracts one value from a parsed page. Strategies for a field
// are tried in rank order and the first non-blank result wins.
type Strategy interface {
	Extract(doc *html.Node) (string, bool)
}

// ParseStrategy builds a Strategy from its config form:
//
//	css:<selector>[::attr(name)]
//	xpath:<expr>[::attr(name)]
//	label:<text>
//	re:<regexp with one capture group>
func ParseStrategy(spec string) (Strategy, error) {
	kind, body, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("producer: strategy %q: missing kind prefix", spec)
	}
	body = strings.TrimSpace(body)
	switch kind {
	case "css":
		expr, name := splitAttr(body)
		sel, err := parseSelector(expr)
		if err != nil {
			return nil, err
		}
		return nodeStrategy{sel: sel, attr: name}, nil
	case "xpath":
		expr, name := splitAttr(body)
		xp, err := parseXPath(expr)
		if err != nil {
			return nil, err
		}
		return nodeStrategy{sel: xp, attr: name}, nil
	case "label":
		if body == "" {
			return nil, fmt.Errorf("producer: strategy %q: empty label", spec)
		}
		return labelStrategy(strings.ToLower(body)), nil
	case "re":
		re, err := regexp.Compile(body)
		if err != nil {
			return nil, fmt.Errorf("producer: strategy %q: %w", spec, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("producer: strategy %q: needs a capture group", spec)
		}
		return regexStrategy{re: re}, nil
	}
	return nil, fmt.Errorf("producer: strategy %q: unknown kind %q", spec, kind)
}

// MustStrategies parses specs and panics on error. For built-in rules.
func MustStrategies(specs ...string) []Strategy {
	out := make([]Strategy, len(specs))
	for i, s := range specs {
		st, err := ParseStrategy(s)
		if err != nil {
			panic(err)
		}
		out[i] = st
	}
	return out
}

func splitAttr(s string) (expr, name string) {
	i := strings.LastIndex(s, "::attr(")
	if i < 0 || !strings.HasSuffix(s, ")") {
		return s, ""
	}
	return strings.TrimSpace(s[:i]), s[i+len("::attr(") : len(s)-1]
}

type nodeSelector interface {
	selectAll(root *html.Node) []*html.Node
}

// nodeStrategy yields the text (or an attribute) of every match, joined
// as a multi-valued cell.
type nodeStrategy struct {
	sel  nodeSelector
	attr string
}

func (s nodeStrategy) Extract(doc *html.Node) (string, bool) {
	var vals []string
	for _, n := range s.sel.selectAll(doc) {
		if s.attr != "" {
			if v, ok := attr(n, s.attr); ok {
				vals = append(vals, v)
			}
			continue
		}
		vals = append(vals, textOf(n))
	}
	v := record.JoinMulti(vals)
	return v, v != record.Blank
}

// labelStrategy finds an element whose whole text is the label (a
// trailing colon is ignored) and reads the next element, or the rest of
// the parent's text when the value is inline.
type labelStrategy string

func (s labelStrategy) Extract(doc *html.Node) (string, bool) {
	var found string
	walkElements(doc, func(n *html.Node) {
		if found != "" {
			return
		}
		t := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(textOf(n)), ":")))
		if t != string(s) {
			return
		}
		if sib := nextElement(n); sib != nil {
			found = record.Clean(textOf(sib))
		} else if n.Parent != nil {
			rest := strings.TrimSpace(strings.TrimPrefix(textOf(n.Parent), textOf(n)))
			found = record.Clean(rest)
		}
		if found == record.Blank {
			found = ""
		}
	})
	return found, found != ""
}

// regexStrategy matches against the page's visible text.
type regexStrategy struct {
	re *regexp.Regexp
}

func (s regexStrategy) Extract(doc *html.Node) (string, bool) {
	m := s.re.FindStringSubmatch(textOf(doc))
	if m == nil {
		return "", false
	}
	v := record.Clean(m[1])
	return v, v != record.Blank
}

// firstOf runs ranked strategies and returns the first hit.
func firstOf(doc *html.Node, ranked []Strategy) (string, bool) {
	for _, st := range ranked {
		if v, ok := st.Extract(doc); ok {
			return v, true
		}
	}
	return "", false
}
