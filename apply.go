package restyle

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// NodeKind classifies a node for the purpose of rule application.
type NodeKind int

const (
	// KindOther is any node that is neither an element nor a document.
	KindOther NodeKind = iota
	// KindElement is an element node.
	KindElement
	// KindDocument is the document node.
	KindDocument
)

// KindOf returns the kind of n.
func KindOf(n *html.Node) NodeKind {
	if n == nil {
		return KindOther
	}
	switch n.Type {
	case html.ElementNode:
		return KindElement
	case html.DocumentNode:
		return KindDocument
	}
	return KindOther
}

type compiledSelector struct {
	sel cascadia.Selector
	err error
}

// StyleApplier adds the classes of a rule set to the elements of a subtree.
type StyleApplier struct {
	store  *RuleStore
	logger *slog.Logger

	// selectors caches the compiled selectors of last, the rule set applied
	// most recently.
	selectors map[string]compiledSelector
	last      RuleSet
}

// NewStyleApplier returns an applier gated by store.
func NewStyleApplier(store *RuleStore, logger *slog.Logger) *StyleApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StyleApplier{
		store:     store,
		logger:    logger,
		selectors: make(map[string]compiledSelector),
	}
}

// Apply adds the class of every rule to root (if it is a matching element)
// and to all matching descendants of root. Elements that already carry the
// class are left alone, so calling Apply again with the same arguments
// changes nothing. A rule with an invalid selector or class is skipped. Apply
// returns the number of classes added.
func (a *StyleApplier) Apply(root *html.Node, rules RuleSet) int {
	if !a.store.Allowed() {
		return 0
	}
	a.retain(rules)
	kind := KindOf(root)
	if kind == KindOther || len(rules) == 0 {
		return 0
	}
	rootSel := goquery.NewDocumentFromNode(root).Selection

	added := 0
	for _, rule := range rules {
		sel, ok := a.compile(rule)
		if !ok {
			continue
		}
		if kind == KindElement && rootSel.IsMatcher(sel) {
			added += addClass(rootSel, rule.AddClass)
		}
		rootSel.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			added += addClass(s, rule.AddClass)
		})
	}
	return added
}

func addClass(s *goquery.Selection, class string) int {
	if s.HasClass(class) {
		return 0
	}
	s.AddClass(class)
	return 1
}

// retain drops cached selectors that rules no longer use once the rule set
// was replaced.
func (a *StyleApplier) retain(rules RuleSet) {
	if slices.Equal(rules, a.last) {
		return
	}
	a.last = slices.Clone(rules)
	used := make(map[string]bool, len(rules))
	for _, r := range rules {
		used[r.Selector] = true
	}
	maps.DeleteFunc(a.selectors, func(sel string, _ compiledSelector) bool {
		return !used[sel]
	})
}

// compile returns the compiled selector of rule. Results, including
// failures, are cached per selector so a broken rule is only logged once.
func (a *StyleApplier) compile(rule Rule) (cascadia.Selector, bool) {
	if err := rule.Validate(); err != nil {
		a.logger.Debug("skip rule", slog.String("rule", rule.String()), slog.Any("error", err))
		return nil, false
	}
	c, ok := a.selectors[rule.Selector]
	if !ok {
		c.sel, c.err = cascadia.Compile(rule.Selector)
		a.selectors[rule.Selector] = c
		if c.err != nil {
			a.logger.Debug("skip rule with malformed selector",
				slog.String("selector", rule.Selector),
				slog.Any("error", c.err),
			)
		}
	}
	return c.sel, c.err == nil
}
