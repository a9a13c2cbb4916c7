package restyle

import (
	"strings"

	"github.com/speedata/css/scanner"
)

// tokenstream is a list of CSS tokens
type tokenstream []*scanner.Token

type declaration struct {
	key   tokenstream
	value tokenstream
}

// block is a block with a prelude (the selector of a style rule or the
// parameters of an at-rule).
type block struct {
	name         string      // only set if this is an at-rule
	prelude      tokenstream // the "selector"
	childAtRules []*block    // the block's at-rules, if any
	blocks       []*block    // the nested style rules, if any
	declarations []declaration
}

// Stylesheet is the block structure of a custom stylesheet. It is only used
// to describe CSS text; the text itself is injected unchanged.
type Stylesheet struct {
	root block
}

// ParseStylesheet tokenizes and splits css into blocks. It never fails;
// unbalanced input yields whatever blocks could be recognized.
func ParseStylesheet(css string) *Stylesheet {
	return &Stylesheet{root: consumeBlock(tokenizeCSSString(css), false)}
}

// Selectors returns the selectors of all style rules, including those nested
// in at-rules such as @media.
func (s *Stylesheet) Selectors() []string {
	var ret []string
	var walk func(b *block)
	walk = func(b *block) {
		for _, child := range b.blocks {
			ret = append(ret, child.selector())
			walk(child)
		}
		for _, at := range b.childAtRules {
			walk(at)
		}
	}
	walk(&s.root)
	return ret
}

// AtRules returns the names of the top level at-rules.
func (s *Stylesheet) AtRules() []string {
	ret := make([]string, 0, len(s.root.childAtRules))
	for _, at := range s.root.childAtRules {
		ret = append(ret, "@"+at.name)
	}
	return ret
}

// RuleCount returns the number of style rules.
func (s *Stylesheet) RuleCount() int {
	return len(s.Selectors())
}

func (b *block) selector() string {
	return strings.Join(strings.Fields(b.prelude.String()), " ")
}

func tokenizeCSSString(contents string) tokenstream {
	var toks tokenstream
	s := scanner.New(contents)
	for {
		tok := s.Next()
		if tok.Type == scanner.EOF || tok.Type == scanner.Error {
			break
		}
		if tok.Type == scanner.Comment {
			continue
		}
		toks = append(toks, tok)
	}
	return toks
}

// findClosingBrace returns the index of the "}" that closes an already
// consumed "{", or -1.
func findClosingBrace(toks tokenstream) int {
	level := 1
	for i, t := range toks {
		if t.Type == scanner.Delim {
			switch t.Value {
			case "{":
				level++
			case "}":
				level--
				if level == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// fixupPrelude changes DELIM[.] + IDENT[foo] to IDENT[.foo]
func fixupPrelude(toks tokenstream) tokenstream {
	toks = trimSpace(toks)
	for i := 0; i < len(toks)-1; i++ {
		combineNext := false
		switch {
		case toks[i].Type == scanner.Delim && toks[i].Value == "." && toks[i+1].Type == scanner.Ident:
			toks[i+1].Value = "." + toks[i+1].Value
			combineNext = true
		case toks[i].Type == scanner.Delim && toks[i].Value == ":" && toks[i+1].Type == scanner.Ident:
			toks[i+1].Value = ":" + toks[i+1].Value
			combineNext = true
		case toks[i].Type == scanner.Hash:
			toks[i].Value = "#" + toks[i].Value
		}
		if combineNext {
			toks = append(toks[:i], toks[i+1:]...)
		}
	}
	if n := len(toks); n > 0 && toks[n-1].Type == scanner.Hash {
		toks[n-1].Value = "#" + toks[n-1].Value
	}
	return toks
}

func trimSpace(toks tokenstream) tokenstream {
	i, j := 0, len(toks)
	for i < j && toks[i].Type == scanner.S {
		i++
	}
	for j > i && toks[j-1].Type == scanner.S {
		j--
	}
	return toks[i:j]
}

// consumeBlock gets the contents of a block. The name (in case of an at-rule)
// and the prelude are set by the caller.
func consumeBlock(toks tokenstream, inblock bool) block {
	if len(toks) <= 1 {
		return block{}
	}
	b := block{}
	i := 0
	for i < len(toks) && toks[i].Type == scanner.S {
		i++
	}
	start := i
	colon := 0

outer:
	for i < len(toks) {
		// There are only two cases: a declaration or something with curly
		// braces.
		if t := toks[i]; t.Type == scanner.Delim {
			switch t.Value {
			case ":":
				if inblock && colon == 0 {
					colon = i
				}
			case ";":
				if colon > start {
					b.declarations = append(b.declarations, declaration{
						key:   trimSpace(toks[start:colon]),
						value: trimSpace(toks[colon+1 : i]),
					})
				}
				colon = 0
				start = i + 1
				if start < len(toks) && toks[start].Type == scanner.S {
					start++
				}
				if start >= len(toks) {
					break outer
				}
			case "{":
				end := len(toks)
				if rel := findClosingBrace(toks[i+1:]); rel >= 0 {
					end = i + 1 + rel
				}
				sub := toks[i+1 : end]
				first := toks[start]
				nested := first.Type == scanner.AtKeyword && (first.Value == "media" || first.Value == "supports")
				nb := consumeBlock(sub, !nested)
				if first.Type == scanner.AtKeyword {
					nb.name = first.Value
					nb.prelude = fixupPrelude(toks[start+1 : i])
					b.childAtRules = append(b.childAtRules, &nb)
				} else {
					nb.prelude = fixupPrelude(toks[start:i])
					b.blocks = append(b.blocks, &nb)
				}
				i = end
				colon = 0
				start = i + 1
				for start < len(toks) && toks[start].Type == scanner.S {
					start++
				}
			}
		}
		i++
	}
	if colon > start {
		b.declarations = append(b.declarations, declaration{
			key:   trimSpace(toks[start:colon]),
			value: trimSpace(toks[colon+1:]),
		})
	}
	return b
}
