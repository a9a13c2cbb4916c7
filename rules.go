package restyle

import "slices"

// RuleStore holds the rule set, the custom CSS and the gate decision of one
// page. The Controller owns it and shares it by pointer with the applier, the
// injector and the watcher. It is only touched from loop tasks.
type RuleStore struct {
	rules     RuleSet
	customCSS string
	allowed   bool
}

// Rules returns a copy of the current rule set.
func (s *RuleStore) Rules() RuleSet {
	return slices.Clone(s.rules)
}

// SetRules replaces the rule set.
func (s *RuleStore) SetRules(rules RuleSet) {
	s.rules = slices.Clone(rules)
}

// CustomCSS returns the current custom stylesheet text.
func (s *RuleStore) CustomCSS() string {
	return s.customCSS
}

// SetCustomCSS replaces the custom stylesheet text.
func (s *RuleStore) SetCustomCSS(css string) {
	s.customCSS = css
}

// Allowed reports whether the page passed the domain gate.
func (s *RuleStore) Allowed() bool {
	return s != nil && s.allowed
}

func (s *RuleStore) setAllowed(allowed bool) {
	s.allowed = allowed
}
