package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/fsm"
	"github.com/edwarddev/tutorcore/internal/prompt"
)

func TestProhibitionPreambleAppearsInNonConsolidatingStates(t *testing.T) {
	for _, s := range []fsm.State{
		fsm.StateIdle, fsm.StateListening, fsm.StateAnalyzing,
		fsm.StateProbing, fsm.StateHinting, fsm.StateRepair,
	} {
		sys := prompt.BuildSystemPrompt(s, prompt.Context{})
		assert.Contains(t, sys, "ABSOLUTE PROHIBITIONS", "state %s missing guardrail", s)
	}
}

func TestConsolidatingOmitsProhibitionPreamble(t *testing.T) {
	sys := prompt.BuildSystemPrompt(fsm.StateConsolidating, prompt.Context{})
	assert.NotContains(t, sys, "ABSOLUTE PROHIBITIONS")
}

func TestHintingAddsLevelSubclause(t *testing.T) {
	sys := prompt.BuildSystemPrompt(fsm.StateHinting, prompt.Context{HintLevel: domain.HintLevel2})
	assert.Contains(t, sys, "Level 2 - key step")
}

func TestRAGBlockOrderingIsStable(t *testing.T) {
	docs := []domain.RetrievedDocument{
		{ID: "a", Content: "first", Category: domain.CategorySolution, Similarity: 0.9},
		{ID: "b", Content: "second", Category: domain.CategoryConcept, Similarity: 0.5},
	}
	sys := prompt.BuildSystemPrompt(fsm.StateListening, prompt.Context{RetrievedDocuments: docs})
	assert.Less(t, strings.Index(sys, "first"), strings.Index(sys, "second"))
}

func TestUserPromptIncludesGuardrailReminder(t *testing.T) {
	user := prompt.BuildUserPrompt(fsm.StateListening, prompt.Context{StudentInput: "3x=15 so x=5"})
	assert.Contains(t, user, "Never reveal the answer")
	assert.Contains(t, user, "3x=15 so x=5")
}

func TestAnalysisPromptNeverEchoesSolutionIntoInstruction(t *testing.T) {
	sys, user := prompt.AnalysisPrompt("I added instead of multiplying", "Solve 3x+5=20", "x=5")
	assert.Contains(t, sys, "never contain")
	assert.NotContains(t, sys, "x=5")
	assert.Contains(t, user, "x=5") // internal reference is present...
	assert.Contains(t, user, "never echo it in feedback")
}
