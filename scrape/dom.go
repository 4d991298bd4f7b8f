package scrape

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// matcher selects element nodes.
type matcher func(n *html.Node) bool

// byAttr matches <tag attr="value">. An empty tag matches any element.
func byAttr(tag atom.Atom, attr, value string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || (tag != 0 && n.DataAtom != tag) {
			return false
		}
		v, ok := attrValue(n, attr)
		return ok && v == value
	}
}

// byClass matches elements whose class list contains class.
func byClass(tag atom.Atom, class string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || (tag != 0 && n.DataAtom != tag) {
			return false
		}
		v, _ := attrValue(n, "class")
		for _, c := range strings.Fields(v) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// findFirst returns the first node in document order matching m.
func findFirst(root *html.Node, m matcher) *html.Node {
	if root == nil {
		return nil
	}
	if m(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, m); n != nil {
			return n
		}
	}
	return nil
}

// findAll returns every node matching m in document order. Matches nested
// inside a match are included.
func findAll(root *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if m(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// textContent concatenates the text below n, skipping script and style.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// innerText is textContent with whitespace runs collapsed.
func innerText(n *html.Node) string {
	return strings.Join(strings.Fields(textContent(n)), " ")
}

// metaContent returns the content of <meta property=name> or <meta name=name>.
func metaContent(doc *html.Node, name string) string {
	for _, key := range []string{"property", "name"} {
		if n := findFirst(doc, byAttr(atom.Meta, key, name)); n != nil {
			v, _ := attrValue(n, "content")
			return strings.TrimSpace(v)
		}
	}
	return ""
}
