package restyle

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
	"golang.org/x/net/html"
)

func indent(s string) string {
	ret := []string{}
	for _, line := range strings.Split(s, "\n") {
		ret = append(ret, "    "+line)
	}
	return strings.Join(ret, "\n")
}

// String returns an outline of the stylesheet: one line per block opening,
// declarations indented below it.
func (s *Stylesheet) String() string {
	ret := []string{}
	for _, v := range s.root.childAtRules {
		ret = append(ret, v.String())
	}
	for _, v := range s.root.blocks {
		ret = append(ret, v.String())
	}
	return strings.Join(ret, "\n")
}

func (b block) String() string {
	ret := []string{}
	var firstline string
	if b.name != "" {
		firstline = fmt.Sprintf("@%s ", b.name)
	}
	firstline = firstline + b.selector() + " {"
	ret = append(ret, strings.TrimLeft(firstline, " "))
	for _, v := range b.declarations {
		ret = append(ret, "    "+v.key.String()+": "+v.value.String()+";")
	}
	for _, v := range b.childAtRules {
		ret = append(ret, indent(v.String()))
	}
	for _, v := range b.blocks {
		ret = append(ret, indent(v.String()))
	}
	ret = append(ret, "}")
	return strings.Join(ret, "\n")
}

func (t tokenstream) String() string {
	ret := []string{}
	for _, tok := range t {
		ret = append(ret, tok.Value)
	}
	return strings.Join(ret, "")
}

// DumpTree returns the element tree below n with the classes of each element,
// for example
//
//	html
//	└── body
//	    └── p .x
func DumpTree(n *html.Node) string {
	tree := treeprint.NewWithRoot(nodeLabel(n))
	addChildren(tree, n)
	return tree.String()
}

func addChildren(branch treeprint.Tree, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.FirstChild == nil {
			branch.AddNode(nodeLabel(c))
			continue
		}
		addChildren(branch.AddBranch(nodeLabel(c)), c)
	}
}

func nodeLabel(n *html.Node) string {
	switch n.Type {
	case html.DocumentNode:
		return "#document"
	case html.ElementNode:
	default:
		return "#node"
	}
	label := n.Data
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			label += " #" + a.Val
		case "class":
			for _, c := range strings.Fields(a.Val) {
				label += " ." + c
			}
		}
	}
	return label
}
