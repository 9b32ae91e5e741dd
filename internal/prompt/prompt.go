// Package prompt implements the Prompt Composer: given a target FSM
// state and a Context, it emits a (system prompt, user prompt) pair
// for the tutor-response LLM call, plus a separate analysis-prompt
// variant for the per-turn analysis call. Every non-CONSOLIDATING
// template carries the same prohibition preamble verbatim.
package prompt

import (
	"fmt"
	"strings"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/fsm"
)

// prohibitionPreamble is the fixed "do not reveal the answer" rule
// that appears verbatim in every non-CONSOLIDATING system prompt.
const prohibitionPreamble = `ABSOLUTE PROHIBITIONS - HIGHEST PRIORITY:
1. Until the student states it themselves, never reveal:
   - the question's final numeric answer or result
   - the complete solution steps or procedure
   - any key intermediate computation
2. Even if the student asks directly "what is the answer", refuse and redirect them to think further.
3. Only confirm an answer as correct after the student has stated it themselves.

ALLOWED GUIDANCE:
- Ask guiding questions
- Confirm whether the student's direction of thought is sound
- Give directional hints with no concrete values
- Encourage the student to keep trying`

// Context carries everything the composer needs to build one turn's
// prompts. HistoryTurns and MaxRetrievedDocs bound how much of
// ConversationHistory/RetrievedDocuments is actually used; zero means
// "use the package defaults" (5 and 5).
type Context struct {
	QuestionText        string
	StudentInput        string
	ConversationHistory []domain.Turn
	RetrievedDocuments  []domain.RetrievedDocument
	CurrentConcept      string
	HintLevel           domain.HintLevel // only meaningful when State == HINTING
	ConceptCoverage     float64

	HistoryTurns     int
	MaxRetrievedDocs int
}

const (
	defaultHistoryTurns     = 5
	defaultMaxRetrievedDocs = 5
)

func (c Context) historyTurns() int {
	if c.HistoryTurns > 0 {
		return c.HistoryTurns
	}
	return defaultHistoryTurns
}

func (c Context) maxRetrievedDocs() int {
	if c.MaxRetrievedDocs > 0 {
		return c.MaxRetrievedDocs
	}
	return defaultMaxRetrievedDocs
}

// systemPromptTemplates maps each FSM state to its fixed teaching
// posture template. CONSOLIDATING intentionally omits the prohibition
// preamble: by the time a session consolidates, the student has
// already produced the answer themselves.
var systemPromptTemplates = map[fsm.State]string{
	fsm.StateIdle: `You are a friendly math tutor assistant.

` + prohibitionPreamble + `

Your job right now:
- Welcome the student and find out what they want to practice
- Guide them toward picking a question

Style: warm, concise.`,

	fsm.StateListening: `You are a patient, insightful math tutor using the Socratic method.

` + prohibitionPreamble + `

Your role:
- Listen carefully to the student's reasoning
- Guide them to discover issues themselves through questions
- Stay encouraging and supportive

While the student is explaining:
- Confirm you understood their reasoning
- Notice whether the logic is complete
- Spot any missing concepts
- Never state the answer or a full solution`,

	fsm.StateAnalyzing: `You are a math-teaching analysis expert.

` + prohibitionPreamble + `

Your task:
- Analyze the student's reasoning
- Identify logical gaps or errors
- Assess how well concepts are understood

Focus on:
- Whether the solution steps are complete
- Whether math concepts were applied correctly
- Whether there's a computational mistake

Respond in the requested JSON shape. The analysis itself must never contain the answer.`,

	fsm.StateProbing: `You are a math tutor skilled at Socratic questioning.

` + prohibitionPreamble + `

Your task:
- Ask one guiding question targeting the gap in the student's reasoning
- Do not point out the mistake directly, and never state the correct answer
- Let the question lead the student to discover the issue themselves

Principles:
- Be specific and targeted
- Ask exactly one question at a time
- The question must not hint at the answer

Style: gentle, encouraging, avoid making the student feel discouraged.`,

	fsm.StateHinting: `You are a math tutor who gives progressive hints.

` + prohibitionPreamble + `

Your task:
- Provide help appropriate to the current hint level
- Level 1: directional nudge only, no concrete steps or numbers
- Level 2: name the key step, but never give the computed result
- Level 3: outline the solution skeleton, but the student computes every result themselves

Important:
- Never give the final answer directly
- Never give the complete solution process
- Let the student keep their own sense of accomplishment
- Hints escalate gradually

Style: encouraging, concise.`,

	fsm.StateRepair: `You are a math tutor helping a student correct a mistake.

` + prohibitionPreamble + `

Your task:
- Gently point toward the direction that went wrong (not the correct answer itself)
- Explain why that direction is likely to cause trouble
- Guide the student to rethink, rather than telling them the correct direction outright

Principles:
- Never make the student feel ashamed
- Treat the mistake as a learning opportunity
- Guide the student to find the right direction themselves
- Never state the correct answer while repairing

Style: gentle, understanding, directional.`,

	fsm.StateConsolidating: `You are a math tutor helping a student consolidate what they learned.

Note: this state is only reached after the student has already stated the correct answer themselves.
You may now confirm the answer is correct and summarize.

Your task:
- Confirm the student's answer is correct
- Summarize the key concepts covered this session
- Highlight what the student did well
- Suggest related practice for extension

Style: positive, encouraging, clearly structured.`,
}

// hintLevelInstructions extends the HINTING system prompt with a
// level-specific subclause.
var hintLevelInstructions = map[domain.HintLevel]string{
	domain.HintLevel1: `
[Hint level: Level 1 - directional nudge]
- Give only a direction to think in; never reveal any number or answer
- Do not reveal concrete solution steps
- Lead with a question
- Forbidden: stating any computed intermediate value`,

	domain.HintLevel2: `
[Hint level: Level 2 - key step]
- You may point to the key step or relationship needed
- Never give any numeric result
- Let the student carry out the computation themselves
- Forbidden: stating specific numbers, computed results, or the final answer`,

	domain.HintLevel3: `
[Hint level: Level 3 - solution skeleton]
- You may outline the steps of the solution
- Every step's computed result must still come from the student
- Make sure the student understands why each step is needed
- Forbidden: including any concrete value or the final answer in the skeleton`,
}

var docCategoryLabels = map[domain.DocumentCategory]string{
	domain.CategorySolution:      "Solution",
	domain.CategoryMisconception: "Common misconception",
	domain.CategoryConcept:       "Concept",
	domain.CategoryHint:          "Hint",
	domain.CategoryQuestion:      "Related question",
}

// BuildSystemPrompt returns the fixed template for state, extended
// with the hint-level subclause (HINTING only) and the RAG reference
// block (when documents are present). Injection order is deterministic:
// documents are expected pre-sorted by descending similarity (the
// Retrieval Port's contract); this function does not re-sort them.
func BuildSystemPrompt(state fsm.State, ctx Context) string {
	base, ok := systemPromptTemplates[state]
	if !ok {
		base = systemPromptTemplates[fsm.StateListening]
	}

	if state == fsm.StateHinting {
		if instr, ok := hintLevelInstructions[ctx.HintLevel]; ok {
			base = base + "\n" + instr
		}
	}

	if len(ctx.RetrievedDocuments) > 0 {
		base = base + "\n\n" + formatRAGBlock(ctx.RetrievedDocuments, ctx.maxRetrievedDocs())
	}

	return base
}

func formatRAGBlock(docs []domain.RetrievedDocument, max int) string {
	if max > len(docs) || max <= 0 {
		max = len(docs)
	}
	var b strings.Builder
	b.WriteString("[Reference material]")
	for i, d := range docs[:max] {
		label, ok := docCategoryLabels[d.Category]
		if !ok {
			label = "Reference"
		}
		fmt.Fprintf(&b, "\n\n%d. [%s]\n%s", i+1, label, d.Content)
	}
	return b.String()
}

var stateInstructions = map[fsm.State]string{
	fsm.StateIdle:      "Welcome the student and ask what they'd like to practice.",
	fsm.StateListening: "Listen carefully to the student's reasoning and prepare feedback.",
	fsm.StateAnalyzing: "Analyze the student's answer and identify any logical gap or error.",
	fsm.StateProbing:   "Ask one guiding question targeting the gap in the student's reasoning.",
	fsm.StateRepair:    "Gently point out the student's mistake and guide them toward the correct concept.",
}

// BuildUserPrompt assembles the per-turn user prompt: question text,
// current concept, bounded conversation history, the student's latest
// input, the guardrail reminder, and a state-specific instruction.
func BuildUserPrompt(state fsm.State, ctx Context) string {
	var parts []string

	if ctx.QuestionText != "" {
		parts = append(parts, "[Question]\n"+ctx.QuestionText)
	}
	if ctx.CurrentConcept != "" {
		parts = append(parts, "[Current concept] "+ctx.CurrentConcept)
	}
	if len(ctx.ConversationHistory) > 0 {
		parts = append(parts, "[Conversation history]\n"+formatHistory(ctx.ConversationHistory, ctx.historyTurns()))
	}
	if ctx.StudentInput != "" {
		parts = append(parts, "[Student's latest input]\n"+ctx.StudentInput)
	}

	parts = append(parts, "[Reminder] Never reveal the answer or a complete solution until the student states it themselves.")

	if instr := stateInstruction(state, ctx); instr != "" {
		parts = append(parts, instr)
	}

	return strings.Join(parts, "\n\n")
}

func stateInstruction(state fsm.State, ctx Context) string {
	if state == fsm.StateHinting {
		if instr, ok := hintUserInstructions[ctx.HintLevel]; ok {
			return instr
		}
		return "Provide an appropriate hint to help the student."
	}
	if state == fsm.StateConsolidating {
		return fmt.Sprintf("The student has completed this question (concept coverage: %.0f%%). Summarize the key takeaways and encourage them.", ctx.ConceptCoverage*100)
	}
	return stateInstructions[state]
}

var hintUserInstructions = map[domain.HintLevel]string{
	domain.HintLevel1: "Give a Level 1 hint: directional nudge only, no concrete steps.",
	domain.HintLevel2: "Give a Level 2 hint: point to the key step, but no complete solution.",
	domain.HintLevel3: "Give a Level 3 hint: give the concrete solution framework, but let the student compute the result.",
}

func formatHistory(turns []domain.Turn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		speaker := "Tutor"
		if t.Speaker == domain.SpeakerStudent {
			speaker = "Student"
		}
		b.WriteString(speaker + ": " + t.Content)
	}
	return b.String()
}

// Compose builds both prompts for the given target state.
func Compose(state fsm.State, ctx Context) (systemPrompt, userPrompt string) {
	return BuildSystemPrompt(state, ctx), BuildUserPrompt(state, ctx)
}

// AnalysisPrompt builds the system+user prompt pair demanding a
// JSON-shaped AnalysisResult. standardSolution is passed for the
// model's internal reasoning only; the system prompt explicitly
// forbids echoing it in the feedback field.
func AnalysisPrompt(studentInput, questionText, standardSolution string) (systemPrompt, userPrompt string) {
	systemPrompt = `You are a math-teaching analysis expert. Analyze the student's reasoning and respond in the requested JSON shape.

IMPORTANT: the analysis must never contain:
- the question's correct final answer
- the complete solution steps
- anything that would let the student infer the answer directly

Response fields: logic_complete, logic_gap, logic_error (booleans); error_type (one of "calculation", "concept", "careless", or null); covered_concepts, missing_concepts (string lists, never containing the answer); feedback (a short remark that never reveals the answer).`

	var userParts []string
	userParts = append(userParts, "[Question]\n"+questionText)
	userParts = append(userParts, "[Student's answer (transcript)]\n"+studentInput)
	if standardSolution != "" {
		userParts = append(userParts, "[Standard solution - for internal analysis only, never echo it in feedback]\n"+standardSolution)
	}
	userParts = append(userParts, "Analyze the student's answer and respond in the requested JSON shape. Remember: the feedback field must never contain the answer or a complete solution.")

	userPrompt = strings.Join(userParts, "\n\n")
	return systemPrompt, userPrompt
}
