package process

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// hiddenElements never contribute visible text. head is skipped because the
// title and meta description are extracted separately.
var hiddenElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"template": true,
}

func ExtractText(body io.Reader) (string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return "", err
	}
	return TextOf(doc), nil
}

// TextOf returns the visible body text under n with whitespace collapsed.
func TextOf(n *html.Node) string {
	var words []string

	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch cur.Type {
		case html.ElementNode:
			if hiddenElements[cur.Data] {
				continue
			}
		case html.TextNode:
			words = append(words, strings.Fields(cur.Data)...)
			continue
		}

		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}

	return strings.Join(words, " ")
}
