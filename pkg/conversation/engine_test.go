package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/query"
)

type stubQueries struct {
	resp    *query.Response
	err     error
	queries []string
}

func (s *stubQueries) ProcessQuery(ctx context.Context, q string, topK int) (*query.Response, error) {
	s.queries = append(s.queries, q)
	return s.resp, s.err
}

func newCheckpoints(t *testing.T) CheckpointStore {
	t.Helper()
	store, err := NewSQLiteCheckpointStore(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func groundedResponse() *query.Response {
	return &query.Response{
		Response: "Paris is the capital of France.",
		Sources: []query.Source{{
			Text:            "Paris is the capital of France.",
			SimilarityScore: 0.92,
			DocID:           "geo",
			Metadata:        map[string]any{"filename": "geo.txt", "source_type": "file"},
		}},
	}
}

func TestStartConversationGreets(t *testing.T) {
	engine := New(nil, newCheckpoints(t))

	result, err := engine.StartConversation(context.Background(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, result.ThreadID)
	assert.Equal(t, 1, result.TurnCount)
	assert.Equal(t, PhaseGreeting, result.CurrentPhase)
	assert.Equal(t, greetingText, result.Response)
}

func TestStartConversationIsIdempotentPerThread(t *testing.T) {
	engine := New(nil, newCheckpoints(t))

	first, err := engine.StartConversation(context.Background(), "t1")
	require.NoError(t, err)
	second, err := engine.StartConversation(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, first.TurnCount, second.TurnCount)
}

func TestGreetingMessageSkipsSearch(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))

	result, err := engine.ProcessMessage(context.Background(), "t1", "hello there")
	require.NoError(t, err)

	assert.Equal(t, PhaseResponding, result.CurrentPhase)
	assert.Equal(t, greetingText, result.Response)
	assert.Empty(t, queries.queries)
	// user + assistant on a fresh thread
	assert.Equal(t, 2, result.TurnCount)
}

func TestQuestionRunsSearchAndAdoptsAnswer(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))

	result, err := engine.ProcessMessage(context.Background(), "t1", "What is the capital of France?")
	require.NoError(t, err)

	require.Len(t, queries.queries, 1)
	assert.Equal(t, "Paris is the capital of France.", result.Response)
	assert.InDelta(t, 0.92, result.ConfidenceScore, 1e-9)
	require.Len(t, result.Sources, 1)
	assert.Contains(t, result.RelatedTopics, "geo.txt")
	assert.NotEmpty(t, result.SuggestedQuestions)
}

func TestSearchFailureNeverRaises(t *testing.T) {
	queries := &stubQueries{err: errors.New("index offline")}
	engine := New(queries, newCheckpoints(t))

	result, err := engine.ProcessMessage(context.Background(), "t1", "What is kubernetes?")
	require.NoError(t, err)

	assert.Equal(t, errorText, result.Response)

	state, err := engine.History("t1", 0)
	require.NoError(t, err)
	assert.True(t, state.HasErrors)
	assert.NotEmpty(t, state.ErrorMessages)
	// The assistant message was still appended.
	assert.Equal(t, RoleAssistant, state.Messages[len(state.Messages)-1].Role)
}

func TestClarificationRequestRoutesToClarify(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))
	ctx := context.Background()

	result, err := engine.ProcessMessageWithOptions(ctx, "t1", "What is the capital?",
		TurnOptions{RequiresClarification: true})
	require.NoError(t, err)

	assert.Equal(t, PhaseClarifying, result.CurrentPhase)
	assert.Equal(t, clarifyText, result.Response)
	// The search node still ran before the clarify edge.
	require.Len(t, queries.queries, 1)

	state, err := engine.History("t1", 0)
	require.NoError(t, err)
	assert.True(t, state.NeedsClarification)
}

func TestClarifyingThreadReentersAtUnderstand(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))
	ctx := context.Background()

	_, err := engine.ProcessMessageWithOptions(ctx, "t1", "What is the capital?",
		TurnOptions{RequiresClarification: true})
	require.NoError(t, err)

	result, err := engine.ProcessMessage(ctx, "t1", "The capital of France, specifically")
	require.NoError(t, err)

	assert.Equal(t, PhaseResponding, result.CurrentPhase)
	assert.Equal(t, "Paris is the capital of France.", result.Response)
	require.Len(t, queries.queries, 2)

	state, err := engine.History("t1", 0)
	require.NoError(t, err)
	assert.False(t, state.NeedsClarification)
}

func TestGoodbyeEndsThread(t *testing.T) {
	engine := New(nil, newCheckpoints(t))

	result, err := engine.ProcessMessage(context.Background(), "t1", "goodbye")
	require.NoError(t, err)
	assert.Equal(t, PhaseEnding, result.CurrentPhase)
	assert.Equal(t, farewellText, result.Response)
}

func TestProcessedQueryCarriesRecentTopics(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))
	ctx := context.Background()

	_, err := engine.ProcessMessage(ctx, "t1", "Tell me about kubernetes networking")
	require.NoError(t, err)
	_, err = engine.ProcessMessage(ctx, "t1", "What about storage?")
	require.NoError(t, err)

	require.Len(t, queries.queries, 2)
	assert.Contains(t, queries.queries[1], "storage?")
	assert.Contains(t, queries.queries[1], "kubernetes")
}

func TestTurnCountMatchesMessages(t *testing.T) {
	engine := New(nil, newCheckpoints(t))
	ctx := context.Background()

	_, err := engine.StartConversation(ctx, "t1")
	require.NoError(t, err)
	_, err = engine.ProcessMessage(ctx, "t1", "hello")
	require.NoError(t, err)

	state, err := engine.History("t1", 0)
	require.NoError(t, err)
	assert.Equal(t, len(state.Messages), state.TurnCount)
	assert.Equal(t, 3, state.TurnCount)
}

func TestCancelledTurnLeavesStateIntact(t *testing.T) {
	engine := New(nil, newCheckpoints(t))
	ctx := context.Background()

	_, err := engine.StartConversation(ctx, "t1")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = engine.ProcessMessage(cancelled, "t1", "hello")
	require.Error(t, err)

	state, err := engine.History("t1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TurnCount)
}

func TestEndConversationProducesSummary(t *testing.T) {
	queries := &stubQueries{resp: groundedResponse()}
	engine := New(queries, newCheckpoints(t))
	ctx := context.Background()

	_, err := engine.ProcessMessage(ctx, "t1", "Tell me about kubernetes")
	require.NoError(t, err)

	summary, err := engine.EndConversation(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UserMessageCount)
	assert.Contains(t, summary.Topics, "kubernetes")
	assert.Equal(t, 3, summary.TurnCount)

	_, err = engine.EndConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestCheckpointSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.db")

	store, err := NewSQLiteCheckpointStore(path)
	require.NoError(t, err)
	engine := New(nil, store)

	_, err = engine.ProcessMessage(context.Background(), "t1", "hello")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := NewSQLiteCheckpointStore(path)
	require.NoError(t, err)
	defer store2.Close()

	engine2 := New(nil, store2)
	state, err := engine2.History("t1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, state.TurnCount)

	threads, err := store2.ListThreads()
	require.NoError(t, err)
	assert.Contains(t, threads, "t1")
}
