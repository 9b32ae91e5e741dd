package fsm_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edwarddev/tutorcore/internal/fsm"
)

var _ = Describe("Controller", func() {
	var c *fsm.Controller

	BeforeEach(func() {
		c = fsm.New(fsm.DefaultConfig())
	})

	It("starts in IDLE", func() {
		Expect(c.State()).To(Equal(fsm.StateIdle))
	})

	It("moves to LISTENING on SESSION_START", func() {
		next := c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		Expect(next).To(Equal(fsm.StateListening))
	})

	It("returns to IDLE from any state on SESSION_END", func() {
		c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		c.Apply(fsm.EventStudentInput, fsm.EventInput{})
		Expect(c.State()).To(Equal(fsm.StateAnalyzing))

		next := c.Apply(fsm.EventSessionEnd, fsm.EventInput{})
		Expect(next).To(Equal(fsm.StateIdle))
	})

	It("ignores unlisted event/state pairs as no-ops", func() {
		// STUDENT_INPUT while IDLE has no rule.
		next := c.Apply(fsm.EventStudentInput, fsm.EventInput{})
		Expect(next).To(Equal(fsm.StateIdle))
		Expect(c.History()).To(BeEmpty())
	})

	Describe("ANALYSIS_RESULT priority", func() {
		BeforeEach(func() {
			c.Apply(fsm.EventSessionStart, fsm.EventInput{})
			c.Apply(fsm.EventStudentInput, fsm.EventInput{})
			Expect(c.State()).To(Equal(fsm.StateAnalyzing))
		})

		It("prioritizes logic_error over logic_gap", func() {
			next := c.Apply(fsm.EventAnalysisResult, fsm.EventInput{
				Outcome: fsm.AnalysisOutcome{LogicError: true, LogicGap: true},
			})
			Expect(next).To(Equal(fsm.StateRepair))
		})

		It("moves to PROBING on logic_gap alone", func() {
			next := c.Apply(fsm.EventAnalysisResult, fsm.EventInput{
				Outcome: fsm.AnalysisOutcome{LogicGap: true},
			})
			Expect(next).To(Equal(fsm.StateProbing))
		})

		It("moves to CONSOLIDATING when coverage clears the threshold", func() {
			next := c.Apply(fsm.EventAnalysisResult, fsm.EventInput{
				Outcome: fsm.AnalysisOutcome{Coverage: 0.95},
			})
			Expect(next).To(Equal(fsm.StateConsolidating))
		})

		It("falls back to LISTENING otherwise", func() {
			next := c.Apply(fsm.EventAnalysisResult, fsm.EventInput{
				Outcome: fsm.AnalysisOutcome{Coverage: 0.1},
			})
			Expect(next).To(Equal(fsm.StateListening))
		})
	})

	It("moves LISTENING to HINTING when silence clears the threshold", func() {
		c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		next := c.Apply(fsm.EventSilenceDetected, fsm.EventInput{SilenceDuration: 6 * time.Second})
		Expect(next).To(Equal(fsm.StateHinting))
	})

	It("stays in LISTENING when silence is under the threshold", func() {
		c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		next := c.Apply(fsm.EventSilenceDetected, fsm.EventInput{SilenceDuration: 2 * time.Second})
		Expect(next).To(Equal(fsm.StateListening))
	})

	It("returns from HINTING to LISTENING on HINT_RESOLVED", func() {
		c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		c.Apply(fsm.EventHintRequest, fsm.EventInput{})
		Expect(c.State()).To(Equal(fsm.StateHinting))

		next := c.Apply(fsm.EventHintResolved, fsm.EventInput{})
		Expect(next).To(Equal(fsm.StateListening))
	})

	It("records an audit trail entry per accepted transition", func() {
		c.Apply(fsm.EventSessionStart, fsm.EventInput{})
		c.Apply(fsm.EventStudentInput, fsm.EventInput{})
		history := c.History()
		Expect(history).To(HaveLen(2))
		Expect(history[0].TriggerEvent).To(Equal(fsm.EventSessionStart))
		Expect(history[1].From).To(Equal(fsm.StateListening))
		Expect(history[1].To).To(Equal(fsm.StateAnalyzing))
	})
})
