package domain

// ErrorType classifies a REPAIR-triggering mistake. The empty string
// means no error was flagged.
type ErrorType string

const (
	ErrorTypeNone        ErrorType = ""
	ErrorTypeCalculation ErrorType = "calculation"
	ErrorTypeConcept     ErrorType = "concept"
	ErrorTypeCareless    ErrorType = "careless"
)

// AnalysisResult is the LLM-produced, JSON-shaped judgment of a
// student's reasoning for one turn. Feedback must never contain the
// final answer; that guardrail is enforced by the prompt composer's
// analysis-prompt variant, not by this type.
type AnalysisResult struct {
	LogicComplete   bool      `json:"logic_complete"`
	LogicGap        bool      `json:"logic_gap"`
	LogicError      bool      `json:"logic_error"`
	ErrorType       ErrorType `json:"error_type"`
	CoveredConcepts []string  `json:"covered_concepts"`
	MissingConcepts []string  `json:"missing_concepts"`
	Feedback        string    `json:"feedback"`
}

// ConservativeResult is the degraded AnalysisResult synthesized when
// the LLM's analysis response fails to parse as JSON: no flags set,
// no concepts covered, the student's own text echoed back as
// feedback. The pipeline continues in LISTENING.
func ConservativeResult(studentText string) AnalysisResult {
	return AnalysisResult{
		LogicComplete: false,
		Feedback:      studentText,
	}
}
