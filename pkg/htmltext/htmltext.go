// Package htmltext turns HTML and XML markup into readable plain text.
package htmltext

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"finvisor/pkg/errors"
)

// Page is the readable content of an HTML document
type Page struct {
	Title string
	Text  string
}

var (
	spaceRun = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// boilerplate is dropped when extracting the main article body
var boilerplate = map[atom.Atom]bool{
	atom.Nav:    true,
	atom.Header: true,
	atom.Footer: true,
	atom.Aside:  true,
	atom.Form:   true,
}

var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Section: true, atom.Article: true, atom.Blockquote: true,
	atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Hr: true,
}

// Extract parses HTML and returns the title and the visible text of the body
func Extract(r io.Reader) (Page, error) {
	return extract(r, false)
}

// ExtractArticle is Extract with navigation, headers, footers and forms removed.
// When an <article> element exists only its text is returned.
func ExtractArticle(r io.Reader) (Page, error) {
	return extract(r, true)
}

func extract(r io.Reader, article bool) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, errors.Wrap(err, "failed to parse html")
	}

	page := Page{Title: title(doc)}

	root := doc
	if article {
		if a := find(doc, atom.Article); a != nil {
			root = a
		}
	}

	var sb strings.Builder
	walk(root, &sb, article)
	page.Text = Normalize(sb.String())
	return page, nil
}

// Text returns the visible text of an HTML or XML fragment.
// Tags are dropped and character data is kept, so it also works for XBRL and SGML filings.
func Text(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return Normalize(sb.String()), nil
			}
			return "", errors.Wrap(z.Err(), "failed to tokenize markup")
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				skip++
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && skip > 0 {
				skip--
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// Normalize collapses runs of spaces and blank lines
func Normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func walk(n *html.Node, sb *strings.Builder, article bool) {
	if n.Type == html.ElementNode {
		if skipped[n.DataAtom] || n.DataAtom == atom.Head || hidden(n) {
			return
		}
		if article && boilerplate[n.DataAtom] {
			return
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}

	isBlock := n.Type == html.ElementNode && block[n.DataAtom]
	if isBlock {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, article)
	}
	if isBlock {
		sb.WriteByte('\n')
	}
}

// hidden catches inline XBRL headers that filings wrap in display:none
func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "style" && strings.Contains(strings.ReplaceAll(strings.ToLower(a.Val), " ", ""), "display:none") {
			return true
		}
		if a.Key == "hidden" {
			return true
		}
	}
	return false
}

func title(doc *html.Node) string {
	if t := find(doc, atom.Title); t != nil && t.FirstChild != nil {
		return strings.TrimSpace(t.FirstChild.Data)
	}
	if h := find(doc, atom.H1); h != nil {
		var sb strings.Builder
		walk(h, &sb, false)
		return Normalize(sb.String())
	}
	return ""
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}
