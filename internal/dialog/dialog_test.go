package dialog_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/edwarddev/tutorcore/internal/dialog"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/errorbook"
	"github.com/edwarddev/tutorcore/internal/fsm"
	"github.com/edwarddev/tutorcore/internal/hint"
	"github.com/edwarddev/tutorcore/internal/llmport"
	"github.com/edwarddev/tutorcore/internal/metrics"
	"github.com/edwarddev/tutorcore/internal/retrieval"
	"github.com/edwarddev/tutorcore/internal/session"
)

// fakePersister is a no-op Persister, mirroring the session package's
// own test fake.
type fakePersister struct {
	mu          sync.Mutex
	turnsCount  int
	hintsCount  int
	finalized   bool
	reportsSeen []domain.MetricsReport
}

func (f *fakePersister) CreateSession(_ context.Context, _ *domain.Session) error { return nil }

func (f *fakePersister) AppendTurn(_ context.Context, _ int64, _ domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turnsCount++
	return nil
}

func (f *fakePersister) AppendHint(_ context.Context, _ domain.HintRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hintsCount++
	return nil
}

func (f *fakePersister) FinalizeSession(_ context.Context, _ *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = true
	return nil
}

func (f *fakePersister) WriteMetricsReport(_ context.Context, report domain.MetricsReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportsSeen = append(f.reportsSeen, report)
	return nil
}

// fakeLLM distinguishes the analysis call from the tutor-response call
// by inspecting the system prompt (the analysis variant's system
// prompt always names itself "analysis expert" - see
// internal/prompt.AnalysisPrompt), so a single fake can answer both
// roles the Dialog Engine calls through llmport.Port.
type fakeLLM struct {
	mu          sync.Mutex
	next        domain.AnalysisResult
	analysisErr error
	text        string
	tutorErr    error
}

func (f *fakeLLM) Generate(_ context.Context, prompt, system string, _ llmport.Options) (llmport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.Contains(system, "analysis expert") {
		if f.analysisErr != nil {
			return llmport.Response{}, f.analysisErr
		}
		b, _ := json.Marshal(f.next)
		return llmport.Response{Text: string(b)}, nil
	}

	if f.tutorErr != nil {
		return llmport.Response{}, f.tutorErr
	}
	if f.text != "" {
		return llmport.Response{Text: f.text}, nil
	}
	return llmport.Response{Text: "Here's a thought to consider: " + prompt[:min(20, len(prompt))]}, nil
}

func (f *fakeLLM) setAnalysis(r domain.AnalysisResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = r
}

// fakeErrorBook records every published record.
type fakeErrorBook struct {
	mu      sync.Mutex
	records []errorbook.Record
}

func (f *fakeErrorBook) Publish(_ context.Context, rec errorbook.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeErrorBook) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newEngine(llm *fakeLLM, errorBook errorbook.Publisher) (*dialog.Engine, *session.Store, *fakePersister) {
	persist := &fakePersister{}
	store := session.New(persist)
	retr := retrieval.NewMemoryPort()
	agg := metrics.New(hint.DefaultWeights())

	cfg := dialog.DefaultConfig()
	cfg.FSM.SilenceThreshold = 2 * time.Second

	eng := dialog.New(dialog.Deps{
		Sessions:  store,
		Retrieval: retr,
		LLM:       llm,
		Metrics:   agg,
		ErrorBook: errorBook,
	}, cfg)
	return eng, store, persist
}

var _ = Describe("Engine", func() {
	var (
		llm   *fakeLLM
		eng   *dialog.Engine
		store *session.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		llm = &fakeLLM{}
		eng, store, _ = newEngine(llm, nil)
		ctx = context.Background()
	})

	It("starts a session in LISTENING with an initial tutor turn", func() {
		sess, resp, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.State).To(Equal(fsm.StateListening))
		Expect(resp.FSMState).To(Equal(fsm.StateListening))
		Expect(resp.Text).NotTo(BeEmpty())

		conv, err := store.ListConversation(sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(conv).To(HaveLen(1))
		Expect(conv[0].Speaker).To(Equal(domain.SpeakerTutor))
	})

	It("moves to CONSOLIDATING when analysis reports complete coverage", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		llm.setAnalysis(domain.AnalysisResult{
			LogicComplete:   true,
			CoveredConcepts: []string{"linear-equations"},
		})

		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "3x=9 so x=3"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.FSMState).To(Equal(fsm.StateConsolidating))
		Expect(resp.ResponseType).To(Equal(dialog.ResponseConsolidate))
	})

	It("moves to REPAIR and publishes an error record on logic_error", func() {
		errBook := &fakeErrorBook{}
		eng, _, _ = newEngine(llm, errBook)

		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		llm.setAnalysis(domain.AnalysisResult{LogicError: true, ErrorType: domain.ErrorTypeCalculation})

		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "3x=9 so x=6"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.FSMState).To(Equal(fsm.StateRepair))
		Expect(errBook.count()).To(Equal(1))
	})

	It("moves to PROBING on logic_gap alone", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		llm.setAnalysis(domain.AnalysisResult{LogicGap: true})

		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "I think x is something"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.FSMState).To(Equal(fsm.StateProbing))
		Expect(resp.ResponseType).To(Equal(dialog.ResponseProbe))
	})

	It("routes a hint-keyword turn straight to HINTING without calling the analysis path", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "can you give me a hint?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ResponseType).To(Equal(dialog.ResponseHint))
		Expect(resp.HintLevel).NotTo(BeNil())
		Expect(*resp.HintLevel).To(Equal(domain.HintLevel1))
		// HINT_RESOLVED returns PROBING/HINTING/REPAIR -> LISTENING, so
		// the engine settles back in LISTENING after serving the hint.
		Expect(resp.FSMState).To(Equal(fsm.StateListening))
	})

	It("escalates the hint ladder on repeated hint requests for the same concept", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		first, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "hint please"})
		Expect(err).NotTo(HaveOccurred())
		second, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "hint please"})
		Expect(err).NotTo(HaveOccurred())

		Expect(*first.HintLevel).To(Equal(domain.HintLevel1))
		Expect(*second.HintLevel).To(Equal(domain.HintLevel2))
	})

	It("treats silence past the threshold as a hint request without recording a student turn", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := eng.HandleSilence(ctx, sess.ID, 3*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).NotTo(BeNil())
		Expect(resp.ResponseType).To(Equal(dialog.ResponseHint))

		conv, err := store.ListConversation(sess.ID)
		Expect(err).NotTo(HaveOccurred())
		for _, t := range conv {
			Expect(t.Speaker).NotTo(Equal(domain.SpeakerStudent))
		}
	})

	It("ignores silence below the threshold", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := eng.HandleSilence(ctx, sess.ID, 500*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(BeNil())
	})

	It("never returns an error for an unknown session id", func() {
		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: 999999, Text: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).NotTo(BeEmpty())
	})

	It("rejects further turns once a session has ended", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.EndSession(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())

		resp, err := eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "still here?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(ContainSubstring("already ended"))
	})

	It("degrades instead of failing when the tutor-response call errors out", func() {
		llm.tutorErr = llmport.ErrTransport
		sess, resp, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Degraded).To(BeTrue())
		Expect(sess.State).To(Equal(fsm.StateListening))
	})

	It("surfaces ErrModelMissing as a hard error instead of degrading", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
		Expect(err).NotTo(HaveOccurred())

		llm.tutorErr = llmport.ErrModelMissing
		_, err = eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "x=3"})
		Expect(err).To(MatchError(llmport.ErrModelMissing))
	})

	It("serializes turns within a session while letting sessions progress independently", func() {
		const sessions = 4
		ids := make([]int64, sessions)
		for i := range ids {
			sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", nil)
			Expect(err).NotTo(HaveOccurred())
			ids[i] = sess.ID
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids {
			for t := 0; t < 3; t++ {
				g.Go(func() error {
					_, err := eng.ProcessStudentInput(gctx, dialog.StudentInput{SessionID: id, Text: "working on it"})
					return err
				})
			}
		}
		Expect(g.Wait()).To(Succeed())

		for _, id := range ids {
			conv, err := store.ListConversation(id)
			Expect(err).NotTo(HaveOccurred())
			// Initial greeting plus 3 student/tutor pairs, numbered
			// without gaps or duplicates.
			Expect(conv).To(HaveLen(7))
			for i, turn := range conv {
				Expect(turn.Number).To(Equal(i + 1))
			}
		}
	})

	It("computes a metrics report and returns a summary on EndSession", func() {
		sess, _, err := eng.StartSession(ctx, "q1", "student-1", "solve 3x=9", "x=3", []string{"linear-equations"})
		Expect(err).NotTo(HaveOccurred())

		llm.setAnalysis(domain.AnalysisResult{LogicComplete: true, CoveredConcepts: []string{"linear-equations"}})
		_, err = eng.ProcessStudentInput(ctx, dialog.StudentInput{SessionID: sess.ID, Text: "x=3"})
		Expect(err).NotTo(HaveOccurred())

		summary, err := eng.EndSession(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.FinalState).To(Equal(fsm.StateIdle))
		Expect(summary.ConceptCoverage).To(Equal(1.0))
	})
})
