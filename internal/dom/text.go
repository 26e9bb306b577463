package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrLengthMismatch is returned by Apply when the translations do not line up
// with the snapshot.
var ErrLengthMismatch = errors.New("translation count does not match snapshot")

// Text nodes whose immediate parent is one of these are never translated.
var excludedParents = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Textarea: true,
	atom.Input:    true,
	atom.Select:   true,
}

// TextNode pairs a live text node with the content it had when collected.
type TextNode struct {
	Node     *html.Node
	Original string
}

// Snapshot is an ordered capture of translatable text nodes.
type Snapshot []TextNode

// Texts returns the original strings in snapshot order.
func (s Snapshot) Texts() []string {
	out := make([]string, len(s))
	for i, tn := range s {
		out[i] = tn.Original
	}
	return out
}

// Contains reports whether n is part of the snapshot.
func (s Snapshot) Contains(n *html.Node) bool {
	for _, tn := range s {
		if tn.Node == n {
			return true
		}
	}
	return false
}

// Collect returns the translatable text nodes under root in document order:
// text with non-blank content whose immediate parent is not an excluded element.
func Collect(root *html.Node) Snapshot {
	var snap Snapshot
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if translatable(n) {
			snap = append(snap, TextNode{Node: n, Original: n.Data})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return snap
}

func translatable(n *html.Node) bool {
	if n.Type != html.TextNode || strings.TrimSpace(n.Data) == "" {
		return false
	}
	p := n.Parent
	return p == nil || p.Type != html.ElementNode || !excludedParents[p.DataAtom]
}

// Restore writes the original content back into every snapshot node that is
// still attached. Detached nodes are skipped. It returns the number restored.
func (d *Document) Restore(s Snapshot) int {
	written := 0
	d.asSelf(func() {
		for _, tn := range s {
			if !d.IsConnected(tn.Node) {
				continue
			}
			d.SetText(tn.Node, tn.Original)
			written++
		}
	})
	return written
}

// Apply writes translated[i] into s[i] for every node that is still attached.
// Detached nodes are skipped. Nothing is written when the lengths differ.
func (d *Document) Apply(s Snapshot, translated []string) (int, error) {
	if len(s) != len(translated) {
		return 0, fmt.Errorf("%w: %d nodes, %d translations", ErrLengthMismatch, len(s), len(translated))
	}

	written := 0
	d.asSelf(func() {
		for i, tn := range s {
			if !d.IsConnected(tn.Node) {
				continue
			}
			d.SetText(tn.Node, translated[i])
			written++
		}
	})
	return written, nil
}
