package sitemap

import (
	"net/url"
	"sort"
	"strings"
)

// Node is one level of the host/path hierarchy. Pages counts the recorded
// pages at or below the node.
type Node struct {
	Name     string  `json:"name"`
	URL      string  `json:"url,omitempty"`
	Title    string  `json:"title,omitempty"`
	Pages    int     `json:"pages"`
	Children []*Node `json:"children,omitempty"`

	index map[string]*Node
}

func newNode(name string) *Node {
	return &Node{Name: name, index: make(map[string]*Node)}
}

func (n *Node) child(name string) *Node {
	c, ok := n.index[name]
	if !ok {
		c = newNode(name)
		n.index[name] = c
		n.Children = append(n.Children, c)
	}
	return c
}

func (n *Node) sort() {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		c.sort()
	}
}

// Find walks the tree by segment names.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, p := range path {
		next, ok := cur.index[p]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Tree builds the host, subdomain and folder hierarchy of recorded pages.
// Hosts sharing a registrable parent ("blog.example.com", "example.com")
// are grouped under the parent, subdomains one level down.
func (b *Builder) Tree() *Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	root := newNode("")
	for loc, p := range b.pages {
		u, err := url.Parse(loc)
		if err != nil {
			continue
		}

		site, sub := splitHost(p.host)
		cur := root.child(site)
		cur.Pages++
		if sub != "" {
			cur = cur.child(sub)
			cur.Pages++
		}

		for _, seg := range pathSegments(u) {
			cur = cur.child(seg)
			cur.Pages++
		}
		cur.URL = loc
		cur.Title = p.entry.Title
		root.Pages++
	}

	root.sort()
	return root
}

// splitHost separates "blog.example.com" into ("example.com", "blog").
// "www" is not treated as a subdomain.
func splitHost(host string) (site, sub string) {
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host, ""
	}
	site = strings.Join(parts[len(parts)-2:], ".")
	sub = strings.Join(parts[:len(parts)-2], ".")
	return site, sub
}
