// Package dom keeps a server-side HTML document that can be mutated in place,
// observed for changes, and have its visible text swapped for translations.
//
// A Document is not safe for concurrent use; callers serialise access.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MutationKind distinguishes structural changes from text writes.
type MutationKind int

const (
	// ChildList is reported when children are added to or removed from a node.
	ChildList MutationKind = iota
	// CharacterData is reported when a text node's content changes.
	CharacterData
	// Attributes is reported when an element attribute changes.
	Attributes
)

func (k MutationKind) String() string {
	switch k {
	case ChildList:
		return "childList"
	case CharacterData:
		return "characterData"
	case Attributes:
		return "attributes"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// Mutation describes one change to the document.
type Mutation struct {
	Kind    MutationKind
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
	// Self is set for writes made by the synchronizer itself.
	Self bool
}

// Document is a live HTML tree with mutation observers.
type Document struct {
	root      *html.Node
	observers map[int]func(Mutation)
	nextObs   int
	selfWrite int
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root, observers: make(map[int]func(Mutation))}, nil
}

// ParseString is Parse for an in-memory string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the body element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if n := d.Find("body"); len(n) > 0 {
		return n[0]
	}
	return d.root
}

// Find returns the element nodes matching a CSS selector, in document order.
func (d *Document) Find(selector string) []*html.Node {
	return goquery.NewDocumentFromNode(d.root).Find(selector).Nodes
}

// IsConnected reports whether n is still reachable from the document root.
func (d *Document) IsConnected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Observe registers fn for every subsequent mutation and returns a func that
// removes it. Observers run synchronously, after the change is made.
func (d *Document) Observe(fn func(Mutation)) func() {
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

// AppendChild appends child to parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		d.RemoveChild(child.Parent, child)
	}
	parent.AppendChild(child)
	d.notify(Mutation{Kind: ChildList, Target: parent, Added: []*html.Node{child}})
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	d.notify(Mutation{Kind: ChildList, Target: parent, Removed: []*html.Node{child}})
}

// ReplaceChildren removes every child of parent and appends nodes in order.
// One ChildList mutation is reported for the whole replacement.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.AppendChild(n)
	}
	if len(removed) == 0 && len(nodes) == 0 {
		return
	}
	d.notify(Mutation{Kind: ChildList, Target: parent, Added: nodes, Removed: removed})
}

// SetInnerHTML parses fragment in the context of each element matching
// selector and replaces its children. It returns the added nodes.
func (d *Document) SetInnerHTML(selector, fragment string) ([]*html.Node, error) {
	targets := d.Find(selector)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}

	var added []*html.Node
	for _, target := range targets {
		nodes, err := html.ParseFragment(strings.NewReader(fragment), target)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fragment for %q: %w", selector, err)
		}
		d.ReplaceChildren(target, nodes...)
		added = append(added, nodes...)
	}
	return added, nil
}

// SetText replaces the content of a text node.
func (d *Document) SetText(n *html.Node, text string) {
	if n.Type != html.TextNode || n.Data == text {
		return
	}
	n.Data = text
	d.notify(Mutation{Kind: CharacterData, Target: n, Self: d.selfWrite > 0})
}

// SetAttr sets an attribute on an element, adding it if missing.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			if a.Val == val {
				return
			}
			n.Attr[i].Val = val
			d.notify(Mutation{Kind: Attributes, Target: n, Self: d.selfWrite > 0})
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	d.notify(Mutation{Kind: Attributes, Target: n, Self: d.selfWrite > 0})
}

// Attr returns the value of an attribute, or "" when it is missing.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// RemoveAttr deletes an attribute from an element.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.notify(Mutation{Kind: Attributes, Target: n, Self: d.selfWrite > 0})
			return
		}
	}
}

// SetLang sets the lang attribute of the html element.
func (d *Document) SetLang(code string) {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			d.SetAttr(c, "lang", code)
			return
		}
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, returning "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// asSelf runs fn with writes flagged as self-writes.
func (d *Document) asSelf(fn func()) {
	d.selfWrite++
	defer func() { d.selfWrite-- }()
	fn()
}

func (d *Document) notify(m Mutation) {
	for _, fn := range d.observers {
		fn(m)
	}
}
