package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/grain/pkg/utils"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate elements are dropped before any text is read.
var boilerplate = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Header: true,
	atom.Footer: true,
	atom.Nav:    true,
}

var (
	contentTags    = map[atom.Atom]bool{atom.Main: true, atom.Article: true}
	contentIDs     = map[string]bool{"content": true, "main": true}
	contentClasses = map[string]bool{"content": true, "main": true, "post": true, "entry": true, "page": true, "article": true}
)

// ExtractHTML returns the readable text of an HTML page as a single whitespace-collapsed line
// of the form "Title: <title> URL: <pageURL> <content>".
// Content is taken from the main content areas (main, article, #content, .content, #main, .main,
// .post, .entry, .page, .article) in document order, or from the body when the page has none.
func ExtractHTML(content []byte, pageURL string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	title := ""
	if n := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); n != nil {
		title = textOf(n)
	}

	prune(doc)

	var main strings.Builder
	areas := findAll(doc, isContentArea)
	if len(areas) > 0 {
		for _, a := range areas {
			main.WriteString(textOf(a))
			main.WriteString("\n\n")
		}
	} else if body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		main.WriteString(textOf(body))
	}

	full := fmt.Sprintf("Title: %s\nURL: %s\n\n%s", title, pageURL, main.String())
	return utils.CollapseWhitespace(full), nil
}

func isContentArea(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if contentTags[n.DataAtom] {
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			if contentIDs[a.Val] {
				return true
			}
		case "class":
			for _, c := range strings.Fields(a.Val) {
				if contentClasses[c] {
					return true
				}
			}
		}
	}
	return false
}

// prune removes boilerplate elements from the tree.
func prune(doc *html.Node) {
	drop := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && boilerplate[n.DataAtom]
	})
	for _, n := range drop {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// textOf joins the trimmed, non-empty text nodes under n with single spaces.
func textOf(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// findAll returns every node matching match in document order, including nested matches.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}
