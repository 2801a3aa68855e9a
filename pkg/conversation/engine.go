package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pratap1297/rag-new-sub000/pkg/enhance"
	"github.com/pratap1297/rag-new-sub000/pkg/query"
)

// ErrThreadNotFound is returned for operations on unknown threads.
var ErrThreadNotFound = errors.New("conversation thread not found")

const (
	searchTopK       = 5
	respondMaxChunks = 3
	maxSuggestions   = 3
	maxRelatedTopics = 5
	recentTopics     = 3
)

const (
	greetingText = "Hello! I can answer questions about the documents in the knowledge base. What would you like to know?"
	helpText     = "You can ask me questions about ingested documents. I search the knowledge base and answer with sources. Try asking about a specific topic, or say goodbye to end the conversation."
	farewellText = "Goodbye! Feel free to start a new conversation whenever you have more questions."
	fallbackText = "I don't have information about that in the knowledge base yet. Try ingesting relevant documents first, or ask about something else."
	clarifyText  = "Could you tell me a bit more about what you're looking for? Extra detail helps me find the right documents."
	errorText    = "Something went wrong while processing your message. Please try again."
)

// QueryService is the retrieval surface the search node calls.
type QueryService interface {
	ProcessQuery(ctx context.Context, q string, topK int) (*query.Response, error)
}

// TurnResult is what one conversation turn returns to the caller.
type TurnResult struct {
	ThreadID        string   `json:"thread_id"`
	Response        string   `json:"response"`
	TurnCount       int      `json:"turn_count"`
	CurrentPhase    string   `json:"current_phase"`
	ConfidenceScore float64  `json:"confidence_score"`
	Sources         []query.Source `json:"sources,omitempty"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
	RelatedTopics      []string `json:"related_topics,omitempty"`
}

// Engine drives the turn graph. Turns for one thread are serialized by a
// per-thread mutex; different threads run independently.
type Engine struct {
	queries     QueryService
	checkpoints CheckpointStore
	enhancer    *enhance.Enhancer

	mu          sync.Mutex
	states      map[string]*State
	threadLocks map[string]*sync.Mutex
}

// New creates a conversation engine. queries may be nil; the respond node
// then always composes fallback answers.
func New(queries QueryService, checkpoints CheckpointStore) *Engine {
	return &Engine{
		queries:     queries,
		checkpoints: checkpoints,
		enhancer:    enhance.New(3),
		states:      make(map[string]*State),
		threadLocks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockThread(threadID string) func() {
	e.mu.Lock()
	lock, ok := e.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threadLocks[threadID] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// loadState returns the cached or checkpointed state for a thread.
func (e *Engine) loadState(threadID string) (*State, bool) {
	e.mu.Lock()
	state, ok := e.states[threadID]
	e.mu.Unlock()
	if ok {
		return state, true
	}

	if e.checkpoints != nil {
		state, found, err := e.checkpoints.Load(threadID)
		if err != nil {
			slog.Warn("Failed to load conversation checkpoint", "thread_id", threadID, "error", err)
			return nil, false
		}
		if found {
			e.mu.Lock()
			e.states[threadID] = state
			e.mu.Unlock()
			return state, true
		}
	}
	return nil, false
}

// commit stores the new state in memory and checkpoints it. Checkpoint
// failures are logged; the in-memory state is already current.
func (e *Engine) commit(state *State) {
	e.mu.Lock()
	e.states[state.ThreadID] = state
	e.mu.Unlock()

	if e.checkpoints != nil {
		if err := e.checkpoints.Save(state); err != nil {
			slog.Warn("Failed to checkpoint conversation", "thread_id", state.ThreadID, "error", err)
		}
	}
}

// StartConversation creates or loads a thread and runs the greet node on
// a fresh one.
func (e *Engine) StartConversation(ctx context.Context, threadID string) (*TurnResult, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	unlock := e.lockThread(threadID)
	defer unlock()

	state, ok := e.loadState(threadID)
	if ok && len(state.Messages) > 0 {
		return resultFrom(state), nil
	}

	state = NewState(threadID)
	state.CurrentPhase = PhaseGreeting
	state.append(RoleAssistant, greetingText)
	state.GeneratedResponse = greetingText

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.commit(state)
	return resultFrom(state), nil
}

// TurnOptions carries caller-controlled routing for one turn.
type TurnOptions struct {
	// RequiresClarification routes the turn from search to clarify: the
	// assistant asks for more detail instead of answering, and the next
	// user message re-enters at understand.
	RequiresClarification bool
}

// ProcessMessage runs one full turn: understand, optionally search, then
// respond. It never fails on internal errors; those are recorded on the
// state and answered with a fallback message. Only cancellation and
// invalid input return an error, leaving the prior state intact.
func (e *Engine) ProcessMessage(ctx context.Context, threadID, message string) (*TurnResult, error) {
	return e.ProcessMessageWithOptions(ctx, threadID, message, TurnOptions{})
}

// ProcessMessageWithOptions is ProcessMessage with caller routing flags.
func (e *Engine) ProcessMessageWithOptions(ctx context.Context, threadID, message string, opts TurnOptions) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if threadID == "" {
		return nil, fmt.Errorf("thread_id must not be empty")
	}
	if message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	unlock := e.lockThread(threadID)
	defer unlock()

	prior, ok := e.loadState(threadID)
	if !ok {
		prior = NewState(threadID)
	}

	// Work on a scratch copy so a cancelled turn leaves the thread as it was.
	state := prior.Clone()
	state.append(RoleUser, message)

	e.understand(ctx, state, message)

	switch state.UserIntent {
	case enhance.IntentGoodbye:
		state.CurrentPhase = PhaseEnding
		state.GeneratedResponse = farewellText
		state.ResponseConfidence = 1.0
	case enhance.IntentGreeting, enhance.IntentHelp:
		e.respond(state, nil)
	default:
		resp := e.search(ctx, state)
		if opts.RequiresClarification {
			e.clarify(state)
		} else {
			e.respond(state, resp)
		}
	}

	state.append(RoleAssistant, state.GeneratedResponse)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.commit(state)
	return resultFrom(state), nil
}

// understand classifies intent, extracts keywords, and enriches the query
// with recently discussed topics.
func (e *Engine) understand(ctx context.Context, state *State, message string) {
	state.CurrentPhase = PhaseUnderstanding
	state.NeedsClarification = false
	state.OriginalQuery = message
	state.ProcessedQuery = message
	state.SearchResults = nil
	state.ContextChunks = nil
	state.SuggestedQuestions = nil

	enhanced, err := e.enhancer.Enhance(ctx, message)
	if err != nil {
		state.recordError(fmt.Sprintf("enhancement failed: %v", err))
		state.UserIntent = enhance.IntentInformationSeeking
		return
	}

	state.UserIntent = enhanced.Intent.Type
	state.Keywords = enhanced.Keywords

	if n := len(state.TopicsDiscussed); n > 0 {
		recent := state.TopicsDiscussed
		if n > recentTopics {
			recent = recent[n-recentTopics:]
		}
		state.ProcessedQuery = message + " " + strings.Join(recent, " ")
	}

	for _, kw := range enhanced.Keywords {
		if !contains(state.TopicsDiscussed, kw) {
			state.TopicsDiscussed = append(state.TopicsDiscussed, kw)
		}
	}
}

// search calls the query engine. Failures and empty retrievals leave
// search_results empty for the respond node to handle.
func (e *Engine) search(ctx context.Context, state *State) *query.Response {
	state.CurrentPhase = PhaseSearching
	if e.queries == nil {
		return nil
	}

	resp, err := e.queries.ProcessQuery(ctx, state.ProcessedQuery, searchTopK)
	if err != nil {
		state.recordError(fmt.Sprintf("search failed: %v", err))
		return nil
	}
	if len(resp.Sources) == 0 {
		return nil
	}

	state.SearchResults = resp.Sources
	for i, src := range resp.Sources {
		if i >= respondMaxChunks {
			break
		}
		state.ContextChunks = append(state.ContextChunks, src.Text)
	}
	return resp
}

// respond produces the assistant text for this turn. A grounded search
// response is adopted verbatim; otherwise a template is used.
func (e *Engine) respond(state *State, searchResp *query.Response) {
	state.CurrentPhase = PhaseResponding

	switch {
	case searchResp != nil:
		state.GeneratedResponse = searchResp.Response
		state.ResponseConfidence = topSimilarity(searchResp.Sources)
	case state.UserIntent == enhance.IntentGreeting:
		state.GeneratedResponse = greetingText
		state.ResponseConfidence = 1.0
	case state.UserIntent == enhance.IntentHelp:
		state.GeneratedResponse = helpText
		state.ResponseConfidence = 1.0
	case state.HasErrors:
		state.GeneratedResponse = errorText
		state.ResponseConfidence = 0.0
	default:
		state.GeneratedResponse = fallbackText
		state.ResponseConfidence = 0.1
	}

	state.SuggestedQuestions = suggestQuestions(state.Keywords)
}

// clarify pauses the turn to ask for more detail instead of answering.
// Search results gathered so far stay on the state for the follow-up.
func (e *Engine) clarify(state *State) {
	state.CurrentPhase = PhaseClarifying
	state.NeedsClarification = true
	state.GeneratedResponse = clarifyText
	state.ResponseConfidence = 0.0
	state.SuggestedQuestions = suggestQuestions(state.Keywords)
}

// EndConversation runs a goodbye turn and returns the thread summary.
func (e *Engine) EndConversation(ctx context.Context, threadID string) (Summary, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	prior, ok := e.loadState(threadID)
	if !ok {
		return Summary{}, ErrThreadNotFound
	}

	state := prior.Clone()
	state.CurrentPhase = PhaseEnding
	state.GeneratedResponse = farewellText
	state.append(RoleAssistant, farewellText)

	if ctx.Err() != nil {
		return Summary{}, ctx.Err()
	}
	e.commit(state)
	return state.Summarize(), nil
}

// History returns up to maxMessages of the most recent transcript.
func (e *Engine) History(threadID string, maxMessages int) (*State, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	state, ok := e.loadState(threadID)
	if !ok {
		return nil, ErrThreadNotFound
	}

	view := state.Clone()
	if maxMessages > 0 && len(view.Messages) > maxMessages {
		view.Messages = view.Messages[len(view.Messages)-maxMessages:]
	}
	return view, nil
}

func resultFrom(state *State) *TurnResult {
	return &TurnResult{
		ThreadID:           state.ThreadID,
		Response:           state.GeneratedResponse,
		TurnCount:          state.TurnCount,
		CurrentPhase:       state.CurrentPhase,
		ConfidenceScore:    state.ResponseConfidence,
		Sources:            state.SearchResults,
		SuggestedQuestions: state.SuggestedQuestions,
		RelatedTopics:      relatedTopics(state.SearchResults),
	}
}

func suggestQuestions(keywords []string) []string {
	templates := []string{"What is %s?", "How does %s work?", "Tell me more about %s."}
	var out []string
	for i, kw := range keywords {
		if i >= maxSuggestions {
			break
		}
		out = append(out, fmt.Sprintf(templates[i%len(templates)], kw))
	}
	return out
}

// relatedTopics surfaces distinct source documents and types.
func relatedTopics(sources []query.Source) []string {
	var topics []string
	seen := make(map[string]bool)
	add := func(v any) {
		s, ok := v.(string)
		if !ok || s == "" || seen[s] || len(topics) >= maxRelatedTopics {
			return
		}
		seen[s] = true
		topics = append(topics, s)
	}
	for _, src := range sources {
		add(src.Metadata["filename"])
		add(src.Metadata["source_type"])
	}
	return topics
}

func topSimilarity(sources []query.Source) float64 {
	best := 0.0
	for _, s := range sources {
		if s.SimilarityScore > best {
			best = s.SimilarityScore
		}
	}
	return best
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
