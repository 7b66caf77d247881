package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultStrikeThreshold    = 3
	DefaultViolationReason    = "profanity_or_policy_violation"
	DefaultSellerBannedReason = "seller_banned"
	DefaultUnsafeImageReason  = "unsafe_image"
	DefaultRejectedReason     = "rejected_by_admin"
	DefaultActor              = "automated-moderator"
)

// defaultTerms is the built-in blacklist used when no policy file is configured.
var defaultTerms = []string{
	"scam",
	"counterfeit",
	"fake id",
	"stolen",
	"cocaine",
	"meth",
	"weed",
	"gun",
	"ammo",
	"porn",
	"escort",
	"essay writing service",
}

// Policy is the deployment-level moderation configuration.
type Policy struct {
	Terms              []string `yaml:"terms" json:"terms"`
	StrikeThreshold    int      `yaml:"strike_threshold" json:"strike_threshold"`
	ViolationReason    string   `yaml:"violation_reason" json:"violation_reason"`
	SellerBannedReason string   `yaml:"seller_banned_reason" json:"seller_banned_reason"`
	UnsafeImageReason  string   `yaml:"unsafe_image_reason" json:"unsafe_image_reason"`
	RejectedReason     string   `yaml:"rejected_reason" json:"rejected_reason"`
	Actor              string   `yaml:"actor" json:"actor"`
}

// DefaultPolicy is the built-in policy: default terms, three strikes.
func DefaultPolicy() Policy {
	terms := make([]string, len(defaultTerms))
	copy(terms, defaultTerms)
	return Policy{
		Terms:              terms,
		StrikeThreshold:    DefaultStrikeThreshold,
		ViolationReason:    DefaultViolationReason,
		SellerBannedReason: DefaultSellerBannedReason,
		UnsafeImageReason:  DefaultUnsafeImageReason,
		RejectedReason:     DefaultRejectedReason,
		Actor:              DefaultActor,
	}
}

// WithDefaults fills every zero field from DefaultPolicy. An explicitly
// empty term list stays empty only if Terms is non-nil.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.Terms == nil {
		p.Terms = d.Terms
	}
	if p.StrikeThreshold == 0 {
		p.StrikeThreshold = d.StrikeThreshold
	}
	if p.ViolationReason == "" {
		p.ViolationReason = d.ViolationReason
	}
	if p.SellerBannedReason == "" {
		p.SellerBannedReason = d.SellerBannedReason
	}
	if p.UnsafeImageReason == "" {
		p.UnsafeImageReason = d.UnsafeImageReason
	}
	if p.RejectedReason == "" {
		p.RejectedReason = d.RejectedReason
	}
	if p.Actor == "" {
		p.Actor = d.Actor
	}
	return p
}

// Validate rejects a non-positive strike threshold and blank terms.
func (p Policy) Validate() error {
	if p.StrikeThreshold < 1 {
		return fmt.Errorf("policy: strike_threshold must be >= 1, got %d", p.StrikeThreshold)
	}
	for i, t := range p.Terms {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("policy: term %d is empty", i)
		}
	}
	return nil
}

// Matcher tests normalized text against the blacklist on word boundaries.
type Matcher struct {
	terms    []string
	patterns []*regexp.Regexp
}

// A "word" character is any letter, digit or underscore in any script, so a
// term never matches inside a longer word ("class" does not contain "ass").
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// NewMatcher compiles one lowercase pattern per non-blank term.
func NewMatcher(terms []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range terms {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			continue
		}
		re, err := regexp.Compile(wordStart + regexp.QuoteMeta(term) + wordEnd)
		if err != nil {
			return nil, fmt.Errorf("compile term %q: %w", raw, err)
		}
		m.terms = append(m.terms, term)
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match lowercases text and returns the first blacklisted term found in it.
func (m *Matcher) Match(text string) (string, bool) {
	normalized := strings.ToLower(text)
	for i, re := range m.patterns {
		if re.MatchString(normalized) {
			return m.terms[i], true
		}
	}
	return "", false
}

// Len is the number of active terms.
func (m *Matcher) Len() int { return len(m.patterns) }
