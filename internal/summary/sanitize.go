package summary

import (
	"bytes"
	"html"
	"net/url"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	disclaimerLine    = regexp.MustCompile(`(?im)^\s*(note|remarque|disclaimer|avertissement)\s*:.*$`)
	disclaimerInline  = regexp.MustCompile(`(?i)[\(\[]\s*(note|remarque|disclaimer)\s*:[^\)\]]*[\)\]]`)
	blankLines        = regexp.MustCompile(`\n{3,}`)
	htmlTagPattern    = regexp.MustCompile(`(?i)<\s*(p|ul|ol|li|h[1-6]|blockquote|strong|em|a|br)\b`)
	allowedElements   = map[atom.Atom]bool{
		atom.P: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
		atom.H2: true, atom.H3: true, atom.H4: true, atom.Blockquote: true,
		atom.Strong: true, atom.Em: true, atom.A: true, atom.Br: true,
	}
	droppedElements = map[atom.Atom]bool{
		atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
		atom.Embed: true, atom.Form: true, atom.Link: true, atom.Meta: true,
		atom.Noscript: true, atom.Svg: true, atom.Math: true, atom.Base: true,
		atom.Template: true, atom.Textarea: true, atom.Select: true, atom.Title: true,
		atom.Noembed: true, atom.Noframes: true, atom.Frameset: true,
	}
	allowedSchemes    = map[string]bool{"http": true, "https": true, "mailto": true}
	fragmentContainer = &nethtml.Node{Type: nethtml.ElementNode, Data: "div", DataAtom: atom.Div}
)

// StripDisclaimers removes model boilerplate such as "(Note: ...)" asides.
func StripDisclaimers(s string) string {
	s = disclaimerInline.ReplaceAllString(s, "")
	s = disclaimerLine.ReplaceAllString(s, "")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// BodyHTML turns generator output into a safe HTML fragment. Plain text is
// split into paragraphs; markup is reduced to an allowlist of text elements.
func BodyHTML(body string) string {
	body = StripDisclaimers(body)
	if body == "" {
		return ""
	}
	if !htmlTagPattern.MatchString(body) {
		return paragraphs(body)
	}
	out, err := sanitizeFragment(body)
	if err != nil {
		return paragraphs(body)
	}
	return out
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, p := range strings.Split(text, "\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(p))
		b.WriteString("</p>\n")
	}
	return strings.TrimSpace(b.String())
}

func sanitizeFragment(s string) (string, error) {
	nodes, err := nethtml.ParseFragment(strings.NewReader(s), fragmentContainer)
	if err != nil {
		return "", err
	}
	root := &nethtml.Node{Type: nethtml.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		copyAllowed(root, n)
	}
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := nethtml.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// copyAllowed appends to dst a clean copy of n. Elements off the allowlist
// are unwrapped, or dropped with their content when they are in droppedElements.
func copyAllowed(dst, n *nethtml.Node) {
	switch n.Type {
	case nethtml.TextNode:
		dst.AppendChild(&nethtml.Node{Type: nethtml.TextNode, Data: n.Data})
		return
	case nethtml.ElementNode:
	default:
		return
	}
	if n.Namespace != "" || droppedElements[n.DataAtom] {
		return
	}

	target := dst
	if allowedElements[n.DataAtom] {
		el := &nethtml.Node{Type: nethtml.ElementNode, Data: n.Data, DataAtom: n.DataAtom}
		if n.DataAtom == atom.A {
			href, ok := safeHref(n)
			if ok {
				el.Attr = []nethtml.Attribute{{Key: "href", Val: href}}
			}
		}
		if n.DataAtom != atom.A || el.Attr != nil {
			dst.AppendChild(el)
			target = el
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		copyAllowed(target, c)
	}
}

// safeHref returns the href of a when it is relative or uses an allowed scheme.
func safeHref(a *nethtml.Node) (string, bool) {
	for _, attr := range a.Attr {
		if attr.Namespace != "" || strings.ToLower(attr.Key) != "href" {
			continue
		}
		v := strings.Map(func(r rune) rune {
			if r <= ' ' || r == 0x7f {
				return -1
			}
			return r
		}, attr.Val)
		if v == "" {
			return "", false
		}
		u, err := url.Parse(v)
		if err != nil {
			return "", false
		}
		if u.Scheme == "" || allowedSchemes[strings.ToLower(u.Scheme)] {
			return v, true
		}
		return "", false
	}
	return "", false
}
