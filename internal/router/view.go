package router

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"cyberbook/internal/logging"
)

// View is where the router renders. The router drives it in a fixed
// order: loading on, transition out, render, title, transition in,
// scroll reset, loading off.
type View interface {
	Render(out Output) error
	SetTitle(title string)
	SetLoading(on bool)
	Transition(phase string)
	ScrollTop()
}

// Transition phases.
const (
	PhaseOut = "out"
	PhaseIn  = "in"
)

const shell = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head>` +
	`<body><div id="loading" hidden></div><main id="content"></main></body></html>`

// DOMView is a headless document with a #content container and a #loading
// indicator. It records transition phases and scroll resets.
type DOMView struct {
	mu      sync.Mutex
	doc     *html.Node
	title   *html.Node
	content *html.Node
	loading *html.Node

	phases  []string
	scrolls int

	logger *slog.Logger
}

// ViewOption configures a DOMView.
type ViewOption func(*DOMView)

// WithViewLogger sets the logger HTML and ContentHTML report render
// errors to.
func WithViewLogger(l *slog.Logger) ViewOption {
	return func(v *DOMView) { v.logger = l }
}

// NewDOMView builds an empty document titled title.
func NewDOMView(title string, opts ...ViewOption) *DOMView {
	doc, err := html.Parse(strings.NewReader(fmt.Sprintf(shell, html.EscapeString(title))))
	if err != nil {
		panic(err)
	}
	v := &DOMView{doc: doc}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logging.OrDefault(v.logger)
	walk(doc, func(n *html.Node) {
		switch {
		case n.DataAtom == atom.Title:
			v.title = n
		case attr(n, "id") == "content":
			v.content = n
		case attr(n, "id") == "loading":
			v.loading = n
		}
	})
	return v
}

// Render replaces the children of #content.
func (v *DOMView) Render(out Output) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var nodes []*html.Node
	switch out.Kind {
	case OutputEmpty:
	case OutputText:
		parsed, err := html.ParseFragment(strings.NewReader(out.Text), v.content)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		nodes = parsed
	case OutputNode:
		nodes = []*html.Node{cloneNode(out.Node)}
	default:
		return fmt.Errorf("render: unknown output kind %d", out.Kind)
	}

	for c := v.content.FirstChild; c != nil; c = v.content.FirstChild {
		v.content.RemoveChild(c)
	}
	for _, n := range nodes {
		v.content.AppendChild(n)
	}
	return nil
}

func (v *DOMView) SetTitle(title string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := v.title.FirstChild; c != nil; c = v.title.FirstChild {
		v.title.RemoveChild(c)
	}
	v.title.AppendChild(&html.Node{Type: html.TextNode, Data: title})
}

func (v *DOMView) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.title.FirstChild == nil {
		return ""
	}
	return v.title.FirstChild.Data
}

// SetLoading toggles the hidden attribute of #loading.
func (v *DOMView) SetLoading(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if on {
		removeAttr(v.loading, "hidden")
		return
	}
	setAttr(v.loading, "hidden", "")
}

func (v *DOMView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !hasAttr(v.loading, "hidden")
}

// Transition sets the view-<phase> class on #content and records the phase.
func (v *DOMView) Transition(phase string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	setAttr(v.content, "class", "view-"+phase)
	v.phases = append(v.phases, phase)
}

// Phases returns the transition phases seen so far.
func (v *DOMView) Phases() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.phases))
	copy(out, v.phases)
	return out
}

func (v *DOMView) ScrollTop() {
	v.mu.Lock()
	v.scrolls++
	v.mu.Unlock()
}

func (v *DOMView) Scrolls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrolls
}

// WriteContentHTML renders the children of #content to w.
func (v *DOMView) WriteContentHTML(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := v.content.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(w, c); err != nil {
			return fmt.Errorf("render content: %w", err)
		}
	}
	return nil
}

// WriteHTML renders the whole document to w.
func (v *DOMView) WriteHTML(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := html.Render(w, v.doc); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	return nil
}

// ContentHTML is WriteContentHTML into a string. Render errors are logged
// and the markup written before the error is returned.
func (v *DOMView) ContentHTML() string {
	var buf bytes.Buffer
	if err := v.WriteContentHTML(&buf); err != nil {
		v.logger.Error("render view", "error", err)
	}
	return buf.String()
}

// HTML is WriteHTML into a string, logging render errors like ContentHTML.
func (v *DOMView) HTML() string {
	var buf bytes.Buffer
	if err := v.WriteHTML(&buf); err != nil {
		v.logger.Error("render view", "error", err)
	}
	return buf.String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func cloneNode(n *html.Node) *html.Node {
	out := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(cloneNode(c))
	}
	return out
}

func attr(n *html.Node, key string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
