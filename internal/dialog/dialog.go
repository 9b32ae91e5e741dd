// Package dialog implements the Dialog Engine: the per-turn pipeline
// that binds the FSM Controller, Hint Controller, Retrieval Port, LLM
// Port and Prompt Composer into one strictly ordered sequence per
// student turn. Retrieval always completes before either LLM call of
// the same turn, and the "never reveal the answer" guardrail is
// carried through every composed prompt.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edwarddev/tutorcore/common/id"
	"github.com/edwarddev/tutorcore/common/logger"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/errorbook"
	"github.com/edwarddev/tutorcore/internal/fsm"
	"github.com/edwarddev/tutorcore/internal/hint"
	"github.com/edwarddev/tutorcore/internal/knowledge"
	"github.com/edwarddev/tutorcore/internal/llmport"
	"github.com/edwarddev/tutorcore/internal/metrics"
	"github.com/edwarddev/tutorcore/internal/prompt"
	"github.com/edwarddev/tutorcore/internal/retrieval"
	"github.com/edwarddev/tutorcore/internal/session"
)

// ErrSessionNotFound and ErrSessionTerminal alias the domain package's
// sentinels. The Dialog Engine's session-affecting verbs never return
// them — both conditions are translated into a benign TutorResponse
// (or, for EndSession, an empty IDLE SessionSummary) instead; they are
// exported here for lower-level code and tests that
// want to assert on the underlying condition with errors.Is.
var (
	ErrSessionNotFound = domain.ErrSessionNotFound
	ErrSessionTerminal = domain.ErrSessionTerminal
)

// ResponseType is the tutor's posture for one generated reply.
type ResponseType string

const (
	ResponseProbe       ResponseType = "probe"
	ResponseHint        ResponseType = "hint"
	ResponseRepair      ResponseType = "repair"
	ResponseConsolidate ResponseType = "consolidate"
	ResponseAcknowledge ResponseType = "acknowledge"
)

// StudentInput is one turn of input from the student, already
// transcribed if it originated as speech.
type StudentInput struct {
	SessionID int64
	Text      string
	Audio     *domain.AudioFeatures
}

// TutorResponse is what the pipeline returns to the external API
// layer for one turn.
type TutorResponse struct {
	Text              string
	ResponseType      ResponseType
	HintLevel         *domain.HintLevel
	RelatedConcepts   []string
	SuggestedNextStep string
	FSMState          fsm.State
	// Degraded is true when Text came from the LLM Port's fallback
	// path rather than a real completion.
	Degraded bool
}

// SessionSummary is returned by EndSession.
type SessionSummary struct {
	SessionID       int64
	DurationSeconds float64
	ConceptsCovered []string
	ConceptCoverage float64
	HintsUsed       []domain.HintRecord
	TotalTurns      int
	FinalState      fsm.State
}

// Config holds the engine's tunable knobs; connection settings live
// in core/config.
type Config struct {
	FSM                    fsm.Config
	HintWeights            hint.Weights
	HintKeywords           []string
	RetrievalMaxResults    int
	RetrievalMinSimilarity float64
	PromptHistoryTurns     int
	PromptMaxRetrievedDocs int
}

// DefaultConfig returns the documented defaults for every knob.
func DefaultConfig() Config {
	return Config{
		FSM:                    fsm.DefaultConfig(),
		HintWeights:            hint.DefaultWeights(),
		HintKeywords:           DefaultHintKeywords(),
		RetrievalMaxResults:    5,
		RetrievalMinSimilarity: 0.3,
		PromptHistoryTurns:     5,
		PromptMaxRetrievedDocs: 5,
	}
}

// Deps bundles the Engine's collaborators. Sessions, Retrieval, LLM
// and Metrics are required; Analyzer, Knowledge, ErrorBook and
// Classifier are optional replaceable collaborators.
type Deps struct {
	Sessions  *session.Store
	Retrieval retrieval.Port
	LLM       llmport.Port
	Metrics   *metrics.Aggregator

	// Analyzer, when set, performs the per-turn analysis call through
	// a schema-constrained structured-output client instead of
	// parsing free text out of LLM.Generate. See
	// internal/llmport.StructuredAnalyzer.
	Analyzer *llmport.StructuredAnalyzer

	// Knowledge, when set, feeds the Hint Controller's weighted
	// dependency accounting: a concept with unmet prerequisites gets
	// boosted hint weights.
	Knowledge knowledge.Port

	// ErrorBook, when set, receives an opaque error record on every
	// REPAIR transition.
	ErrorBook errorbook.Publisher

	// Classifier overrides the default keyword-based hint-request
	// classifier.
	Classifier HintRequestClassifier
}

type runtime struct {
	fsm  *fsm.Controller
	hint *hint.Controller
}

// Engine is the constructed, dependency-injected Dialog Engine. It
// holds no package-level singletons beyond its injected ports.
type Engine struct {
	sessions      *session.Store
	retrieval     retrieval.Port
	llm           llmport.Port
	analyzer      *llmport.StructuredAnalyzer
	knowledgePort knowledge.Port
	errorBook     errorbook.Publisher
	errorBookTags *errorbook.Classifier
	metricsAgg    *metrics.Aggregator
	classifier    HintRequestClassifier
	cfg           Config

	mu       sync.Mutex
	runtimes map[int64]*runtime

	// silenceGuard coalesces duplicate concurrent silence
	// notifications for the same (session, duration) pair, e.g. an
	// upstream attention monitor retrying the exact same timeout
	// event. It is keyed on the payload, not just the session id, so
	// two genuinely distinct concurrent turns are never coalesced into
	// one result; per-session serialization instead comes from
	// session.Store.Lock, held for the whole pipeline body below.
	silenceGuard singleflight.Group
}

// New constructs an Engine. A nil Classifier uses NewKeywordClassifier
// with cfg.HintKeywords.
func New(deps Deps, cfg Config) *Engine {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = NewKeywordClassifier(cfg.HintKeywords)
	}
	return &Engine{
		sessions:      deps.Sessions,
		retrieval:     deps.Retrieval,
		llm:           deps.LLM,
		analyzer:      deps.Analyzer,
		knowledgePort: deps.Knowledge,
		errorBook:     deps.ErrorBook,
		errorBookTags: errorbook.NewClassifier(),
		metricsAgg:    deps.Metrics,
		classifier:    classifier,
		cfg:           cfg,
		runtimes:      make(map[int64]*runtime),
	}
}

func (e *Engine) runtimeFor(sessionID int64) *runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.runtimes[sessionID]
	if !ok {
		// Sessions normally get their runtime in StartSession; this
		// path covers a session rehydrated into the store without one.
		rt = &runtime{
			fsm:  fsm.New(e.cfg.FSM),
			hint: hint.New(sessionID, e.cfg.HintWeights, e.sessions),
		}
		e.runtimes[sessionID] = rt
	}
	return rt
}

func (e *Engine) dropRuntime(sessionID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runtimes, sessionID)
}

// StartSession allocates a Session with a fresh identifier, resets the
// FSM, fires SESSION_START, initializes the Hint Controller with the
// first required concept, and returns the session plus the initial
// greeting produced on the IDLE to LISTENING transition.
func (e *Engine) StartSession(ctx context.Context, questionID, studentID, questionText, standardSolution string, requiredConcepts []string) (*domain.Session, TutorResponse, error) {
	sessionID := id.New()
	sess := domain.New(sessionID, studentID, questionID, questionText, standardSolution, requiredConcepts)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:  logger.Ptr(sessionID),
		StudentID:  logger.Ptr(studentID),
		QuestionID: logger.Ptr(questionID),
		Component:  "tutorcore.dialog.engine",
	})

	rt := &runtime{
		fsm:  fsm.New(e.cfg.FSM),
		hint: hint.New(sessionID, e.cfg.HintWeights, e.sessions),
	}
	e.mu.Lock()
	e.runtimes[sessionID] = rt
	e.mu.Unlock()

	concept := firstConcept(requiredConcepts)
	rt.hint.StartSession(concept)

	newState := rt.fsm.Apply(fsm.EventSessionStart, fsm.EventInput{})
	sess.State = newState

	if err := e.sessions.CreateSession(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "persist session create failed", "error", err)
	}

	pctx := prompt.Context{
		QuestionText:     questionText,
		CurrentConcept:   concept,
		HistoryTurns:     e.cfg.PromptHistoryTurns,
		MaxRetrievedDocs: e.cfg.PromptMaxRetrievedDocs,
	}
	systemPrompt, userPrompt := prompt.Compose(newState, pctx)
	resp, hardErr := e.generateTutorText(ctx, systemPrompt, userPrompt)
	if hardErr != nil {
		return sess, TutorResponse{}, hardErr
	}

	turn, err := sess.AppendTurn(domain.SpeakerTutor, resp.Text, nil)
	if err == nil {
		if err := e.sessions.AppendTurn(ctx, sess, turn); err != nil {
			slog.ErrorContext(ctx, "persist initial turn failed", "error", err)
		}
	}

	return sess, TutorResponse{
		Text:         resp.Text,
		ResponseType: ResponseAcknowledge,
		FSMState:     newState,
		Degraded:     resp.Degraded,
	}, nil
}

// ProcessStudentInput runs the per-turn pipeline. The step order is
// part of the contract and never changes: lookup, record, classify,
// advance, retrieve, analyze, merge, advance, compose, generate,
// classify response, record. The returned error is non-nil only for
// ErrModelMissing: a misconfigured LLM endpoint is the one condition
// surfaced as a hard failure rather than translated into a
// degraded-but-valid TutorResponse.
func (e *Engine) ProcessStudentInput(ctx context.Context, in StudentInput) (TutorResponse, error) {
	// Step 1: lookup. A missing session never aborts the caller.
	sess, unlock, err := e.sessions.Lock(in.SessionID)
	if err != nil {
		return TutorResponse{
			Text:         "I couldn't find that session. Let's start a new one.",
			ResponseType: ResponseAcknowledge,
		}, nil
	}
	defer unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:  logger.Ptr(sess.ID),
		StudentID:  logger.Ptr(sess.StudentID),
		QuestionID: logger.Ptr(sess.QuestionID),
		TurnNumber: logger.Ptr(len(sess.Turns) + 1),
		FSMState:   logger.Ptr(string(sess.State)),
		Component:  "tutorcore.dialog.engine",
	})

	if sess.IsTerminal() {
		return TutorResponse{
			Text:         "This session has already ended.",
			ResponseType: ResponseAcknowledge,
			FSMState:     sess.State,
		}, nil
	}

	rt := e.runtimeFor(sess.ID)

	// Step 2: record the student turn at the current state.
	studentTurn, err := sess.AppendTurn(domain.SpeakerStudent, in.Text, in.Audio)
	if err != nil {
		return TutorResponse{
			Text:         "This session has already ended.",
			ResponseType: ResponseAcknowledge,
			FSMState:     sess.State,
		}, nil
	}
	if err := e.sessions.AppendTurn(ctx, sess, studentTurn); err != nil {
		slog.ErrorContext(ctx, "persist student turn failed", "error", err)
	}

	slog.DebugContext(ctx, "student input received", "text", logger.Truncate(in.Text, 120))

	// Step 3: hint-request classification branches out of the
	// analysis pipeline entirely.
	if e.classifier.IsHintRequest(in.Text) {
		return e.handleHintRequest(ctx, sess, rt, in.Text)
	}

	// Step 4: advance FSM on STUDENT_INPUT (LISTENING -> ANALYZING).
	sess.State = rt.fsm.Apply(fsm.EventStudentInput, fsm.EventInput{})

	// Step 5: retrieve (must precede both LLM calls below).
	docs := e.retrieveDocs(ctx, in.Text, sess)

	// Step 6: analyze.
	analysis := e.analyze(ctx, in.Text, sess)

	// Step 7: merge covered concepts.
	sess.MergeCoveredConcepts(analysis.CoveredConcepts)

	coverage := sess.CoverageRatio()
	fsmCoverage := coverage
	if len(sess.RequiredConcepts) == 0 && !analysis.LogicComplete {
		// A session with no declared concepts must not consolidate on
		// vacuous coverage alone before the student has produced a
		// complete line of reasoning at least once.
		fsmCoverage = 0
	}

	// Step 8: advance FSM on ANALYSIS_RESULT (priority rules).
	newState := rt.fsm.Apply(fsm.EventAnalysisResult, fsm.EventInput{
		Outcome: fsm.AnalysisOutcome{
			LogicComplete: analysis.LogicComplete,
			LogicGap:      analysis.LogicGap,
			LogicError:    analysis.LogicError,
			Coverage:      fsmCoverage,
		},
	})
	sess.State = newState

	if newState == fsm.StateRepair && e.errorBook != nil {
		e.publishErrorRecord(ctx, sess, in.Text, analysis)
	}

	concept := currentConcept(sess, rt)

	// Step 9: compose the tutor prompt for the new state.
	pctx := prompt.Context{
		QuestionText:        sess.QuestionText,
		StudentInput:        in.Text,
		ConversationHistory: sess.Turns,
		RetrievedDocuments:  docs,
		CurrentConcept:      concept,
		HintLevel:           rt.hint.CurrentLevel(),
		ConceptCoverage:     coverage,
		HistoryTurns:        e.cfg.PromptHistoryTurns,
		MaxRetrievedDocs:    e.cfg.PromptMaxRetrievedDocs,
	}
	systemPrompt, userPrompt := prompt.Compose(newState, pctx)

	// Step 10: generate.
	resp, hardErr := e.generateTutorText(ctx, systemPrompt, userPrompt)
	if hardErr != nil {
		return TutorResponse{}, hardErr
	}

	// Step 11 + 12: classify response type, record, return.
	tutorTurn, err := sess.AppendTurn(domain.SpeakerTutor, resp.Text, nil)
	if err == nil {
		if err := e.sessions.AppendTurn(ctx, sess, tutorTurn); err != nil {
			slog.ErrorContext(ctx, "persist tutor turn failed", "error", err)
		}
	}

	return TutorResponse{
		Text:              resp.Text,
		ResponseType:      responseTypeForState(newState),
		RelatedConcepts:   analysis.CoveredConcepts,
		SuggestedNextStep: suggestedNextStep(newState, concept),
		FSMState:          newState,
		Degraded:          resp.Degraded,
	}, nil
}

// HandleSilence feeds SILENCE_DETECTED into the FSM. If and only if
// the resulting state is HINTING, it serves a hint exactly as a
// spoken hint request would, using "(silence)" as prompt-only flavor
// text — never appended to the conversation log, so word-count and
// pause metrics stay functions of genuine student speech. Otherwise it
// returns (nil, nil): no TutorResponse, no error.
func (e *Engine) HandleSilence(ctx context.Context, sessionID int64, duration time.Duration) (*TutorResponse, error) {
	key := fmt.Sprintf("%d:%s", sessionID, duration)
	v, err, _ := e.silenceGuard.Do(key, func() (any, error) {
		resp, err := e.handleSilenceOnce(ctx, sessionID, duration)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return (*TutorResponse)(nil), nil
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp, _ := v.(*TutorResponse)
	return resp, nil
}

func (e *Engine) handleSilenceOnce(ctx context.Context, sessionID int64, duration time.Duration) (*TutorResponse, error) {
	sess, unlock, err := e.sessions.Lock(sessionID)
	if err != nil {
		return nil, nil
	}
	defer unlock()

	if sess.IsTerminal() {
		return nil, nil
	}

	rt := e.runtimeFor(sessionID)
	newState := rt.fsm.Apply(fsm.EventSilenceDetected, fsm.EventInput{SilenceDuration: duration})
	sess.State = newState

	if newState != fsm.StateHinting {
		return nil, nil
	}

	resp, err := e.handleHintRequest(ctx, sess, rt, "(silence)")
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// handleHintRequest serves one leveled hint. It is called both from
// the student-text classifier branch (before any STUDENT_INPUT, so the
// state is whatever the previous turn left: LISTENING, PROBING, REPAIR
// or CONSOLIDATING) and from HandleSilence (state already HINTING, so the
// HINT_REQUEST apply below is a harmless no-op). studentText is used
// for the retrieval query and prompt context only; the caller decides
// whether it was also recorded as a real turn.
func (e *Engine) handleHintRequest(ctx context.Context, sess *domain.Session, rt *runtime, studentText string) (TutorResponse, error) {
	sess.State = rt.fsm.Apply(fsm.EventHintRequest, fsm.EventInput{})

	concept := currentConcept(sess, rt)
	e.adjustHintWeights(ctx, rt, sess, concept)

	docs := e.retrieveDocs(ctx, studentText, sess)

	level, err := rt.hint.RequestHint(ctx, concept)
	if err != nil {
		slog.ErrorContext(ctx, "hint persistence failed", "error", err)
	}
	sess.AppendHint(level, concept)

	pctx := prompt.Context{
		QuestionText:        sess.QuestionText,
		StudentInput:        studentText,
		ConversationHistory: sess.Turns,
		RetrievedDocuments:  docs,
		CurrentConcept:      concept,
		HintLevel:           level,
		ConceptCoverage:     sess.CoverageRatio(),
		HistoryTurns:        e.cfg.PromptHistoryTurns,
		MaxRetrievedDocs:    e.cfg.PromptMaxRetrievedDocs,
	}
	systemPrompt, userPrompt := prompt.Compose(fsm.StateHinting, pctx)

	resp, hardErr := e.generateTutorText(ctx, systemPrompt, userPrompt)
	if hardErr != nil {
		return TutorResponse{}, hardErr
	}

	// No LLM analysis actually ran here; the distinct HINT_RESOLVED
	// event keeps the audit trail from claiming otherwise.
	newState := rt.fsm.Apply(fsm.EventHintResolved, fsm.EventInput{})
	sess.State = newState

	turn, tErr := sess.AppendTurn(domain.SpeakerTutor, resp.Text, nil)
	if tErr == nil {
		if err := e.sessions.AppendTurn(ctx, sess, turn); err != nil {
			slog.ErrorContext(ctx, "persist hint turn failed", "error", err)
		}
	}

	lvl := level
	return TutorResponse{
		Text:            resp.Text,
		ResponseType:    ResponseHint,
		HintLevel:       &lvl,
		RelatedConcepts: []string{concept},
		FSMState:        newState,
		Degraded:        resp.Degraded,
	}, nil
}

// EndSession fires SESSION_END, marks the session terminal, asks the
// Metrics Aggregator to compute and persist a MetricsReport, and
// returns a SessionSummary. An unknown session id is not an error: it
// yields an empty summary whose FinalState is IDLE.
func (e *Engine) EndSession(ctx context.Context, sessionID int64) (SessionSummary, error) {
	sess, unlock, err := e.sessions.Lock(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return SessionSummary{SessionID: sessionID, FinalState: fsm.StateIdle}, nil
		}
		return SessionSummary{}, fmt.Errorf("dialog: end session: %w", err)
	}
	defer unlock()

	rt := e.runtimeFor(sessionID)
	sess.State = rt.fsm.Apply(fsm.EventSessionEnd, fsm.EventInput{})
	sess.End()

	if err := e.sessions.FinalizeSession(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "persist session finalize failed", "error", err, "session_id", sessionID)
	}

	report := e.metricsAgg.Compute(sess, 0)
	e.metricsAgg.Record(ctx, sess, report)
	if err := e.sessions.WriteMetricsReport(ctx, report); err != nil {
		slog.ErrorContext(ctx, "persist metrics report failed", "error", err, "session_id", sessionID)
	}

	e.dropRuntime(sessionID)

	return SessionSummary{
		SessionID:       sess.ID,
		DurationSeconds: sess.Duration().Seconds(),
		ConceptsCovered: sess.CoveredConcepts(),
		ConceptCoverage: report.ConceptCoverage,
		HintsUsed:       sess.Hints,
		TotalTurns:      len(sess.Turns),
		FinalState:      sess.State,
	}, nil
}

func (e *Engine) retrieveDocs(ctx context.Context, text string, sess *domain.Session) []domain.RetrievedDocument {
	sc := logger.StartSpan(ctx, "tutorcore.dialog.retrieve")
	defer sc.End()
	ctx = sc.Context()

	res, err := e.retrieval.Retrieve(ctx, text, retrieval.Filter{
		KnowledgeNodes: sess.RequiredConcepts,
		MaxResults:     e.cfg.RetrievalMaxResults,
		MinSimilarity:  e.cfg.RetrievalMinSimilarity,
	})
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "retrieval unavailable, continuing without reference docs", "error", err)
		return nil
	}
	return res.Documents
}

func (e *Engine) analyze(ctx context.Context, text string, sess *domain.Session) domain.AnalysisResult {
	sc := logger.StartSpan(ctx, "tutorcore.dialog.analyze")
	defer sc.End()
	ctx = sc.Context()

	systemPrompt, userPrompt := prompt.AnalysisPrompt(text, sess.QuestionText, sess.StandardSolution)

	if e.analyzer != nil {
		result, err := e.analyzer.Analyze(ctx, systemPrompt, userPrompt)
		if err != nil {
			sc.RecordError(err)
			slog.WarnContext(ctx, "structured analysis failed, using conservative result", "error", err)
			return domain.ConservativeResult(text)
		}
		return result
	}

	resp, err := e.llm.Generate(ctx, userPrompt, systemPrompt, nil)
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "analysis generation failed, using conservative result", "error", err)
		return domain.ConservativeResult(text)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(resp.Text), &result); err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "analysis response failed to parse as JSON, using conservative result", "error", err)
		return domain.ConservativeResult(text)
	}
	return result
}

// generateTutorText wraps the tutor-response LLM call in a span and
// translates every failure except ErrModelMissing into a degraded
// response, so the student never sees an exception.
func (e *Engine) generateTutorText(ctx context.Context, systemPrompt, userPrompt string) (llmport.Response, error) {
	sc := logger.StartSpan(ctx, "tutorcore.dialog.generate")
	defer sc.End()
	ctx = sc.Context()

	resp, err := e.llm.Generate(ctx, userPrompt, systemPrompt, nil)
	if err == nil {
		return resp, nil
	}

	sc.RecordError(err)
	if errors.Is(err, llmport.ErrModelMissing) {
		return llmport.Response{}, fmt.Errorf("dialog: %w", err)
	}

	slog.WarnContext(ctx, "tutor generation failed, degrading", "error", err)
	return llmport.Response{
		Text:     "I'm having trouble generating a response right now. Let's keep going with what you have so far.",
		Degraded: true,
	}, nil
}

func (e *Engine) publishErrorRecord(ctx context.Context, sess *domain.Session, studentText string, analysis domain.AnalysisResult) {
	rec := e.errorBookTags.Classify(sess.StudentID, sess.QuestionID, studentText, sess.StandardSolution, "")
	// The analysis call saw the reasoning, not just the answer string;
	// its classification wins over the heuristic one when present.
	switch analysis.ErrorType {
	case domain.ErrorTypeCalculation:
		rec.ErrorType = errorbook.ErrorCalculation
	case domain.ErrorTypeConcept:
		rec.ErrorType = errorbook.ErrorConcept
	case domain.ErrorTypeCareless:
		rec.ErrorType = errorbook.ErrorCareless
	}
	if err := e.errorBook.Publish(ctx, rec); err != nil {
		slog.WarnContext(ctx, "error book publish failed", "error", err, "session_id", sess.ID)
	}
}

// adjustHintWeights boosts the hint ladder's weight table when the
// current concept has unmet prerequisites in the knowledge graph, and
// resets to the flat configured weights otherwise. A nil Knowledge
// port is a no-op: flat weights throughout.
func (e *Engine) adjustHintWeights(ctx context.Context, rt *runtime, sess *domain.Session, concept string) {
	if e.knowledgePort == nil || concept == "" {
		return
	}

	covered := sess.CoveredConcepts()
	coveredSet := make(map[string]struct{}, len(covered))
	for _, c := range covered {
		coveredSet[c] = struct{}{}
	}

	unmet, err := knowledge.UnmetPrerequisites(ctx, e.knowledgePort, concept, coveredSet)
	if err != nil {
		slog.WarnContext(ctx, "knowledge graph lookup failed, using flat hint weights", "error", err)
		return
	}
	if len(unmet) == 0 {
		rt.hint.SetWeights(e.cfg.HintWeights)
		return
	}

	boosted := make(hint.Weights, len(e.cfg.HintWeights))
	for lvl, w := range e.cfg.HintWeights {
		boosted[lvl] = boostWeight(w)
	}
	rt.hint.SetWeights(boosted)
}

func boostWeight(w float64) float64 {
	boosted := w * 1.5
	if boosted > 1.0 {
		return 1.0
	}
	return boosted
}

func firstConcept(required []string) string {
	if len(required) == 0 {
		return ""
	}
	return required[0]
}

// currentConcept picks the first required concept not yet covered, or
// the last required concept once all are covered, or falls back to
// whatever the hint ladder is already tracking for sessions with no
// declared concepts.
func currentConcept(sess *domain.Session, rt *runtime) string {
	covered := sess.CoveredConcepts()
	coveredSet := make(map[string]struct{}, len(covered))
	for _, c := range covered {
		coveredSet[c] = struct{}{}
	}
	for _, req := range sess.RequiredConcepts {
		if _, ok := coveredSet[req]; !ok {
			return req
		}
	}
	if len(sess.RequiredConcepts) > 0 {
		return sess.RequiredConcepts[len(sess.RequiredConcepts)-1]
	}
	if rt.hint != nil {
		return rt.hint.Concept()
	}
	return ""
}

func responseTypeForState(s fsm.State) ResponseType {
	switch s {
	case fsm.StateProbing:
		return ResponseProbe
	case fsm.StateHinting:
		return ResponseHint
	case fsm.StateRepair:
		return ResponseRepair
	case fsm.StateConsolidating:
		return ResponseConsolidate
	default:
		return ResponseAcknowledge
	}
}

func suggestedNextStep(state fsm.State, concept string) string {
	if state != fsm.StateConsolidating {
		return ""
	}
	if concept == "" {
		return "Try a related practice problem."
	}
	return fmt.Sprintf("Try a related problem that uses %s.", concept)
}
