package public_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/common/id"
	"github.com/edwarddev/tutorcore/internal/dialog"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/hint"
	"github.com/edwarddev/tutorcore/internal/llmport"
	"github.com/edwarddev/tutorcore/internal/metrics"
	"github.com/edwarddev/tutorcore/internal/public"
	"github.com/edwarddev/tutorcore/internal/retrieval"
	"github.com/edwarddev/tutorcore/internal/session"
)

type noopPersister struct{}

func (noopPersister) CreateSession(context.Context, *domain.Session) error { return nil }
func (noopPersister) AppendTurn(context.Context, int64, domain.Turn) error { return nil }
func (noopPersister) AppendHint(context.Context, domain.HintRecord) error { return nil }
func (noopPersister) FinalizeSession(context.Context, *domain.Session) error {
	return nil
}
func (noopPersister) WriteMetricsReport(context.Context, domain.MetricsReport) error {
	return nil
}

type canned struct{ text string }

func (c canned) Generate(_ context.Context, _, _ string, _ llmport.Options) (llmport.Response, error) {
	return llmport.Response{Text: c.text}, nil
}

func newFacade(t *testing.T) *public.Facade {
	t.Helper()
	require.NoError(t, id.Init(1))
	store := session.New(noopPersister{})
	eng := dialog.New(dialog.Deps{
		Sessions:  store,
		Retrieval: retrieval.NewMemoryPort(),
		LLM:       canned{text: `{"logic_complete":false}`},
		Metrics:   metrics.New(hint.DefaultWeights()),
	}, dialog.DefaultConfig())
	return public.New(eng, store)
}

func TestStartAndGetState(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	started, err := f.Start(ctx, public.StartRequest{
		QuestionID:       "q1",
		StudentID:        "s1",
		QuestionText:     "solve 2x=4",
		StandardSolution: "x=2",
		RequiredConcepts: []string{"linear-equations"},
	})
	require.NoError(t, err)
	require.Equal(t, "LISTENING", started.FSMState)
	require.NotEmpty(t, started.InitialMessage)

	state, err := f.GetState(started.SessionID)
	require.NoError(t, err)
	require.True(t, state.Active)
	require.Equal(t, "s1", state.StudentID)

	active := f.ListActive()
	require.Len(t, active, 1)
}

func TestInputAndEnd(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	started, err := f.Start(ctx, public.StartRequest{QuestionID: "q1", StudentID: "s1", QuestionText: "solve 2x=4"})
	require.NoError(t, err)

	resp, err := f.Input(ctx, public.InputRequest{SessionID: started.SessionID, Text: "x=2"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Text)

	summary, err := f.End(ctx, started.SessionID)
	require.NoError(t, err)
	require.Equal(t, "IDLE", summary.FinalState)
}

func TestCleanupEvictsTerminalSessions(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	started, err := f.Start(ctx, public.StartRequest{QuestionID: "q1", StudentID: "s1", QuestionText: "solve 2x=4"})
	require.NoError(t, err)

	_, err = f.End(ctx, started.SessionID)
	require.NoError(t, err)

	evicted := f.Cleanup()
	require.Equal(t, 1, evicted)

	_, err = f.GetState(started.SessionID)
	require.Error(t, err)
}

func TestSilenceBelowThresholdReturnsNil(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	started, err := f.Start(ctx, public.StartRequest{QuestionID: "q1", StudentID: "s1", QuestionText: "solve 2x=4"})
	require.NoError(t, err)

	resp, err := f.Silence(ctx, public.SilenceRequest{SessionID: started.SessionID, DurationSeconds: 0.1})
	require.NoError(t, err)
	require.Nil(t, resp)
}
