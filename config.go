package restyle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Store keys.
const (
	KeyRules          = "rules"
	KeyCustomCSS      = "customCSS"
	KeyAllowedDomains = "allowedDomains"
)

// ErrInvalidRule is returned by Rule.Validate.
var ErrInvalidRule = errors.New("invalid rule")

// Rule states that elements matching Selector should carry the class AddClass.
type Rule struct {
	Selector string `json:"selector" yaml:"selector" jsonschema:"minLength=1"`
	AddClass string `json:"addClass" yaml:"addClass" jsonschema:"pattern=^\\S+$"`
}

// Validate checks that the rule can be applied to an element.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Selector) == "" {
		return fmt.Errorf("%w: empty selector", ErrInvalidRule)
	}
	if r.AddClass == "" {
		return fmt.Errorf("%w: empty class", ErrInvalidRule)
	}
	if strings.IndexFunc(r.AddClass, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: class %q contains whitespace", ErrInvalidRule, r.AddClass)
	}
	return nil
}

func (r Rule) String() string {
	return r.Selector + " ." + r.AddClass
}

// RuleSet is an ordered list of rules. It is always replaced as a whole.
type RuleSet []Rule

// Config is the complete stored configuration.
type Config struct {
	Rules          RuleSet  `json:"rules,omitempty" yaml:"rules,omitempty"`
	CustomCSS      string   `json:"customCSS,omitempty" yaml:"customCSS,omitempty"`
	AllowedDomains []string `json:"allowedDomains,omitempty" yaml:"allowedDomains,omitempty"`
}

// Change holds the previous and the new value of one key.
type Change[T any] struct {
	OldValue T `json:"oldValue"`
	NewValue T `json:"newValue"`
}

// ChangeSet is one change notification. A nil field means the key was not
// part of the write.
type ChangeSet struct {
	Rules          *Change[RuleSet]  `json:"rules,omitempty"`
	CustomCSS      *Change[string]   `json:"customCSS,omitempty"`
	AllowedDomains *Change[[]string] `json:"allowedDomains,omitempty"`
}

// Empty reports whether no key changed.
func (cs ChangeSet) Empty() bool {
	return cs.Rules == nil && cs.CustomCSS == nil && cs.AllowedDomains == nil
}

// Keys returns the names of the changed keys.
func (cs ChangeSet) Keys() []string {
	var keys []string
	if cs.Rules != nil {
		keys = append(keys, KeyRules)
	}
	if cs.CustomCSS != nil {
		keys = append(keys, KeyCustomCSS)
	}
	if cs.AllowedDomains != nil {
		keys = append(keys, KeyAllowedDomains)
	}
	return keys
}

// Patch is a partial write. Nil fields are left untouched.
type Patch struct {
	Rules          *RuleSet
	CustomCSS      *string
	AllowedDomains *[]string
}

// Apply returns cfg with the patch applied and the resulting changes. Keys
// whose value does not change are left out of the change set.
func (p Patch) Apply(cfg Config) (Config, ChangeSet) {
	var cs ChangeSet
	if p.Rules != nil && !slices.Equal(cfg.Rules, *p.Rules) {
		next := slices.Clone(*p.Rules)
		cs.Rules = &Change[RuleSet]{OldValue: cfg.Rules, NewValue: next}
		cfg.Rules = next
	}
	if p.CustomCSS != nil && cfg.CustomCSS != *p.CustomCSS {
		cs.CustomCSS = &Change[string]{OldValue: cfg.CustomCSS, NewValue: *p.CustomCSS}
		cfg.CustomCSS = *p.CustomCSS
	}
	if p.AllowedDomains != nil && !slices.Equal(cfg.AllowedDomains, *p.AllowedDomains) {
		next := slices.Clone(*p.AllowedDomains)
		cs.AllowedDomains = &Change[[]string]{OldValue: cfg.AllowedDomains, NewValue: next}
		cfg.AllowedDomains = next
	}
	return cfg, cs
}

// Diff returns the changes that turn old into cur.
func Diff(old, cur Config) ChangeSet {
	rules, css, domains := cur.Rules, cur.CustomCSS, cur.AllowedDomains
	_, cs := Patch{Rules: &rules, CustomCSS: &css, AllowedDomains: &domains}.Apply(old)
	return cs
}

// ConfigStore is the asynchronous configuration source of a page.
type ConfigStore interface {
	// Get reads the current configuration.
	Get(ctx context.Context) (Config, error)
	// Subscribe returns a channel of change notifications in write order. The
	// channel is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan ChangeSet, error)
}
