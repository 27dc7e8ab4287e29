package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
)

func defaultClassifier() *Classifier {
	return New(DefaultMinLength, NewVocabulary(config.DefaultVocabulary...))
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		utterance string
		want      Decision
		rule      string
	}{
		{"How long do I boil an egg?", Eligible, RuleVocabulary},
		{"Tell me about COOKING techniques", Eligible, RuleVocabulary},
		{"salt?", Skip, RuleTooShort},
		{"", Skip, RuleTooShort},
		{"What's the weather like today?", Skip, RuleNoTerm},
		// Exactly ten characters is not enough.
		{"bake bread", Skip, RuleTooShort},
		{"bake bread!", Eligible, RuleVocabulary},
		// Substring matching: "heat" inside "wheat".
		{"is wheat grown here", Eligible, RuleVocabulary},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got := c.Classify(tt.utterance)
			assert.Equal(t, tt.want, got.Decision)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestClassify_ReportsTerm(t *testing.T) {
	got := defaultClassifier().Classify("Which herb goes with fish?")
	assert.Equal(t, Eligible, got.Decision)
	// Both "fish" and "herb" match; the smallest term is reported.
	assert.Equal(t, "fish", got.Term)
}

func TestClassify_CountsCharactersNotBytes(t *testing.T) {
	c := New(10, NewVocabulary("crème"))
	// Ten characters, twelve bytes.
	assert.Equal(t, Skip, c.Classify("crème brûl").Decision)
	assert.Equal(t, Eligible, c.Classify("crème brûlée").Decision)
}

func TestClassify_LengthGateOnlyForVocabularyWords(t *testing.T) {
	// Every utterance shorter than the gate is skipped even when it is all vocabulary.
	c := defaultClassifier()
	for _, term := range config.DefaultVocabulary {
		if len(term) > DefaultMinLength {
			continue
		}
		assert.Equal(t, Skip, c.Classify(term).Decision, term)
	}
}

func TestClassify_NoTermNeverEligible(t *testing.T) {
	c := defaultClassifier()
	long := strings.Repeat("zzz ", 50)
	assert.Equal(t, Skip, c.Classify(long).Decision)
}

func TestNewVocabulary(t *testing.T) {
	v := NewVocabulary(" Salt ", "", "PEPPER", "salt")
	assert.Len(t, v, 2)
	_, ok := v["salt"]
	assert.True(t, ok)
	_, ok = v["pepper"]
	assert.True(t, ok)
}

func TestNew_NegativeMinLength(t *testing.T) {
	c := New(-5, NewVocabulary("a"))
	assert.Equal(t, Eligible, c.Classify("a").Decision)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "eligible", Eligible.String())
	assert.Equal(t, "skip", Skip.String())
}
