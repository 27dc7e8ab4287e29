// Package classify decides whether a user utterance is worth a cookbook
// lookup.
package classify

import (
	"strings"
	"unicode/utf8"
)

// Decision is the outcome of classifying one utterance.
type Decision int

const (
	Skip Decision = iota
	Eligible
)

func (d Decision) String() string {
	if d == Eligible {
		return "eligible"
	}
	return "skip"
}

// DefaultMinLength is the length an utterance must exceed to be eligible.
const DefaultMinLength = 10

// Vocabulary is a set of lower-case trigger terms.
type Vocabulary map[string]struct{}

// NewVocabulary builds a set from terms, lower-casing and trimming each.
// Blank terms are dropped.
func NewVocabulary(terms ...string) Vocabulary {
	v := make(Vocabulary, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			v[t] = struct{}{}
		}
	}
	return v
}

// match returns the smallest term contained in lowered, or "".
func (v Vocabulary) match(lowered string) string {
	best := ""
	for t := range v {
		if strings.Contains(lowered, t) && (best == "" || t < best) {
			best = t
		}
	}
	return best
}

// Result explains a decision.
type Result struct {
	Decision Decision
	// Rule names the rule that produced the decision.
	Rule string
	// Term is the vocabulary term that matched, if any.
	Term string
}

// Rule names.
const (
	RuleTooShort   = "too_short"
	RuleNoTerm     = "no_vocabulary_term"
	RuleVocabulary = "vocabulary_match"
)

// Classifier applies a length gate and a substring vocabulary match.
type Classifier struct {
	minLength int
	vocab     Vocabulary
}

// New creates a classifier. A negative minLength is treated as zero.
func New(minLength int, vocab Vocabulary) *Classifier {
	if minLength < 0 {
		minLength = 0
	}
	return &Classifier{minLength: minLength, vocab: vocab}
}

// Classify returns Eligible iff the utterance has more characters than the
// minimum length and its lower-cased form contains at least one vocabulary term.
// Matching is substring based, so "cooking" matches "cook".
func (c *Classifier) Classify(utterance string) Result {
	if utf8.RuneCountInString(utterance) <= c.minLength {
		return Result{Decision: Skip, Rule: RuleTooShort}
	}
	term := c.vocab.match(strings.ToLower(utterance))
	if term == "" {
		return Result{Decision: Skip, Rule: RuleNoTerm}
	}
	return Result{Decision: Eligible, Rule: RuleVocabulary, Term: term}
}
