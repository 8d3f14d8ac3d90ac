package producer

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// An XPath subset: absolute and relative steps, the // descendant axis,
// [n] positions, [@attr], [@attr='v'] and [contains(@attr,'v')].

type xstep struct {
	descendant bool
	tag        string
	attrName   string
	attrValue  string
	contains   bool
	position   int
}

type xpath []xstep

func parseXPath(expr string) (xpath, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("producer: empty xpath")
	}
	descendant := true
	switch {
	case strings.HasPrefix(expr, "//"):
		expr = expr[2:]
	case strings.HasPrefix(expr, "/"):
		expr, descendant = expr[1:], false
	}

	var out xpath
	for _, raw := range splitSteps(expr) {
		if raw == "" {
			descendant = true
			continue
		}
		st, err := parseXStep(raw)
		if err != nil {
			return nil, err
		}
		st.descendant = descendant
		out = append(out, st)
		descendant = false
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("producer: xpath %q has no steps", expr)
	}
	return out, nil
}

// splitSteps splits on "/" outside predicates; "a//b" yields an empty
// element marking the descendant axis.
func splitSteps(expr string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '/':
			if depth == 0 {
				out = append(out, expr[start:i])
				start = i + 1
			}
		}
	}
	return append(out, expr[start:])
}

func parseXStep(s string) (xstep, error) {
	idx := strings.IndexByte(s, '[')
	if idx < 0 {
		return xstep{tag: strings.ToLower(s)}, nil
	}
	st := xstep{tag: strings.ToLower(s[:idx])}
	pred := strings.TrimSuffix(s[idx+1:], "]")

	if n, err := strconv.Atoi(pred); err == nil {
		st.position = n
		return st, nil
	}
	if strings.HasPrefix(pred, "contains(") {
		args := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(pred, "contains("), ")"), ",", 2)
		if len(args) != 2 || !strings.HasPrefix(strings.TrimSpace(args[0]), "@") {
			return st, fmt.Errorf("producer: unsupported predicate %q", pred)
		}
		st.attrName = strings.TrimPrefix(strings.TrimSpace(args[0]), "@")
		st.attrValue = strings.Trim(strings.TrimSpace(args[1]), `'"`)
		st.contains = true
		return st, nil
	}
	if strings.HasPrefix(pred, "@") {
		body := pred[1:]
		if eq := strings.IndexByte(body, '='); eq >= 0 {
			st.attrName = body[:eq]
			st.attrValue = strings.Trim(body[eq+1:], `'"`)
		} else {
			st.attrName = body
		}
		return st, nil
	}
	return st, fmt.Errorf("producer: unsupported predicate %q", pred)
}

func (st xstep) matches(n *html.Node) bool {
	if n.Type != html.ElementNode || st.tag != "*" && n.Data != st.tag {
		return false
	}
	if st.attrName != "" {
		v, ok := attr(n, st.attrName)
		switch {
		case !ok:
			return false
		case st.contains:
			return strings.Contains(v, st.attrValue)
		case st.attrValue != "":
			return v == st.attrValue
		}
	}
	if st.position > 0 {
		pos := 0
		for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
			if s.Type == html.ElementNode && s.Data == n.Data {
				pos++
				if s == n {
					return pos == st.position
				}
			}
		}
		return false
	}
	return true
}

func (xp xpath) selectAll(root *html.Node) []*html.Node {
	current := []*html.Node{root}
	for _, st := range xp {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		add := func(n *html.Node) {
			if !seen[n] && st.matches(n) {
				seen[n] = true
				next = append(next, n)
			}
		}
		for _, from := range current {
			if st.descendant {
				walkElements(from, add)
				continue
			}
			for c := from.FirstChild; c != nil; c = c.NextSibling {
				add(c)
			}
		}
		current = next
	}
	return current
}
