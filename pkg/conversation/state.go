// Package conversation implements the multi-turn dialogue engine: a
// six-phase turn graph over persistent per-thread state. Turns never
// surface errors to the caller; failures are recorded on the state and
// answered with a fallback message.
package conversation

import (
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/query"
)

// Conversation phases.
const (
	PhaseGreeting      = "greeting"
	PhaseUnderstanding = "understanding"
	PhaseSearching     = "searching"
	PhaseResponding    = "responding"
	PhaseClarifying    = "clarifying"
	PhaseEnding        = "ending"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the full persisted record for one thread. TurnCount always
// equals len(Messages).
type State struct {
	ThreadID           string         `json:"thread_id"`
	Messages           []Message      `json:"messages"`
	TurnCount          int            `json:"turn_count"`
	CurrentPhase       string         `json:"current_phase"`
	UserIntent         string         `json:"user_intent"`
	OriginalQuery      string         `json:"original_query"`
	ProcessedQuery     string         `json:"processed_query"`
	Keywords           []string       `json:"keywords"`
	SearchResults      []query.Source `json:"search_results"`
	ContextChunks      []string       `json:"context_chunks"`
	GeneratedResponse  string         `json:"generated_response"`
	ResponseConfidence float64        `json:"response_confidence"`
	NeedsClarification bool           `json:"needs_clarification"`
	TopicsDiscussed    []string       `json:"topics_discussed"`
	SuggestedQuestions []string       `json:"suggested_questions"`
	HasErrors          bool           `json:"has_errors"`
	ErrorMessages      []string       `json:"error_messages"`
	CreatedAt          time.Time      `json:"created_at"`
	LastActivity       time.Time      `json:"last_activity"`
}

// NewState creates an empty thread state.
func NewState(threadID string) *State {
	now := time.Now().UTC()
	return &State{
		ThreadID:     threadID,
		Messages:     []Message{},
		CurrentPhase: PhaseGreeting,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone deep-copies the state so a turn can work on a scratch copy and
// commit only on success.
func (s *State) Clone() *State {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Keywords = append([]string(nil), s.Keywords...)
	c.SearchResults = append([]query.Source(nil), s.SearchResults...)
	c.ContextChunks = append([]string(nil), s.ContextChunks...)
	c.TopicsDiscussed = append([]string(nil), s.TopicsDiscussed...)
	c.SuggestedQuestions = append([]string(nil), s.SuggestedQuestions...)
	c.ErrorMessages = append([]string(nil), s.ErrorMessages...)
	return &c
}

func (s *State) append(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.TurnCount = len(s.Messages)
	s.LastActivity = time.Now().UTC()
}

func (s *State) recordError(msg string) {
	s.HasErrors = true
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// Summary describes an ended thread.
type Summary struct {
	Topics           []string `json:"topics"`
	UserMessageCount int      `json:"user_message_count"`
	TurnCount        int      `json:"turn_count"`
}

// Summarize computes the end-of-thread summary.
func (s *State) Summarize() Summary {
	users := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			users++
		}
	}
	return Summary{
		Topics:           append([]string(nil), s.TopicsDiscussed...),
		UserMessageCount: users,
		TurnCount:        s.TurnCount,
	}
}
