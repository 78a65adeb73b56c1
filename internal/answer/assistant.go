package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/metrics"
	"github.com/hyperjump/grain/internal/models"
	"go.uber.org/zap"
)

const (
	noContextReply = "I don't have enough relevant information to answer that question accurately. " +
		"Please ask about university procedures, fees, courses, admissions, or other university-specific information."

	generationErrorReply = "I encountered an error while processing your question. Please try rephrasing or ask another question."
	noHistoryReply       = "You haven't asked any questions yet."
	retryTemperature     = 0.4
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Retriever returns the relevant chunks for a query among the top k candidates, best first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.Chunk, error)
}

// TypedRetriever narrows the top k candidates to one source type before relevance filtering and
// returns at most limit chunks.
type TypedRetriever interface {
	SearchByType(ctx context.Context, query string, t models.SourceType, k, limit int) ([]models.Chunk, error)
}

// Assistant answers questions from retrieved chunks.
type Assistant struct {
	retriever  Retriever
	generator  Generator
	sessions   *Sessions
	retrieval  config.RetrievalConfig
	generation Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) AssistantOption {
	return func(a *Assistant) { a.logger = l }
}

// WithMetrics records ask latency by answer kind.
func WithMetrics(m *metrics.Metrics) AssistantOption {
	return func(a *Assistant) { a.metrics = m }
}

// WithSessions replaces the default session store.
func WithSessions(s *Sessions) AssistantOption {
	return func(a *Assistant) { a.sessions = s }
}

// NewAssistant creates an assistant. g may be nil, in which case questions that need generation
// are answered with the retrieved chunks only.
func NewAssistant(r Retriever, g Generator, cfg *config.Config, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		retriever:  r,
		generator:  g,
		retrieval:  cfg.Retrieval,
		generation: OptionsFromConfig(cfg.Generation),
		logger:     zap.NewNop(),
	}
	a.generation.System = systemPrompt
	for _, opt := range opts {
		opt(a)
	}
	if a.sessions == nil {
		a.sessions = NewSessions(defaultMaxSessions, defaultSessionTTL)
	}
	return a
}

// Sessions returns the session store.
func (a *Assistant) Sessions() *Sessions {
	return a.sessions
}

// Retrieve returns the chunks for question from the selected data source: the top DefaultK for all
// sources, or the top FilteredK narrowed to one source type and cut to FilteredLimit.
func (a *Assistant) Retrieve(ctx context.Context, question string, ds models.DataSource) ([]models.Chunk, error) {
	t, filtered := ds.SourceType()
	if !filtered {
		return a.retriever.Search(ctx, question, a.retrieval.DefaultK)
	}
	if tr, ok := a.retriever.(TypedRetriever); ok {
		return tr.SearchByType(ctx, question, t, a.retrieval.FilteredK, a.retrieval.FilteredLimit)
	}
	chunks, err := a.retriever.Search(ctx, question, a.retrieval.FilteredK)
	if err != nil {
		return nil, err
	}
	chunks = models.FilterByType(chunks, t)
	if len(chunks) > a.retrieval.FilteredLimit {
		chunks = chunks[:a.retrieval.FilteredLimit]
	}
	return chunks, nil
}

// Ask answers req. History commands and questions about earlier questions are answered from the
// session; small talk gets a canned reply; everything else is retrieved and, when the context is
// usable, generated.
func (a *Assistant) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	ds, err := models.ParseDataSource(string(req.DataSource))
	if err != nil {
		return nil, err
	}
	sess := a.sessions.GetOrCreate(req.SessionID)
	a.logger.Info("question received", zap.String("session_id", sess.ID), zap.String("question", question))

	resp := &models.AskResponse{SessionID: sess.ID}
	finish := func(kind models.AnswerKind, text string) (*models.AskResponse, error) {
		resp.Kind = kind
		resp.Answer = text
		resp.QueryTime = time.Since(start).Milliseconds()
		a.metrics.ObserveAsk(string(kind), time.Since(start))
		return resp, nil
	}

	if isHistoryCommand(question) {
		return finish(models.AnswerHistory, formatHistory(sess.History()))
	}

	var previous []string
	if req.HistoryEnabled() {
		previous = sess.History()
		sess.Append(question)
	}

	if len(previous) > 0 && isHistoryQuery(question) {
		return finish(models.AnswerHistory, formatPrevious(previous))
	}
	if reply, ok := smallTalkReply(question); ok {
		return finish(models.AnswerSmallTalk, reply)
	}

	chunks, err := a.Retrieve(ctx, question, ds)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	resp.Chunks = chunks

	th := Thresholds{High: a.retrieval.HighRelevance, Medium: a.retrieval.MediumRelevance}
	if !usableContext(question, chunks, th) {
		return finish(models.AnswerNoContext, noContextReply)
	}
	if a.generator == nil {
		return finish(models.AnswerGenFailure, ErrGeneratorUnavailable.Error())
	}

	summary := ""
	if len(previous) > summaryMinQueries {
		s, err := a.generator.Generate(ctx, summaryPrompt(previous), Options{})
		if err != nil {
			a.logger.Warn("conversation summary failed", zap.Error(err))
		} else {
			summary = s
		}
	}

	text, err := a.generator.Generate(ctx, buildPrompt(question, chunks, previous, summary), a.generation)
	if err != nil {
		a.logger.Error("generation failed", zap.String("session_id", sess.ID), zap.Error(err))
		return finish(models.AnswerGenFailure, generationErrorReply)
	}

	if isRefusal(text) && worthRetrying(chunks, th.High) {
		opts := Options{Temperature: retryTemperature, MaxOutputTokens: a.generation.MaxOutputTokens}
		retried, err := a.generator.Generate(ctx, retryPrompt(question, chunks), opts)
		switch {
		case err != nil:
			a.logger.Warn("assertive retry failed", zap.Error(err))
		case !isRefusal(retried):
			text = retried
		}
	}
	return finish(models.AnswerGenerated, text)
}

func formatHistory(history []string) string {
	if len(history) == 0 {
		return noHistoryReply
	}
	var b strings.Builder
	b.WriteString("Your conversation history:\n\n")
	for i, q := range history {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}

// formatPrevious lists up to five earlier questions, most recent first.
func formatPrevious(previous []string) string {
	if len(previous) == 1 {
		return fmt.Sprintf("Your previous question was: %q", previous[0])
	}
	var b strings.Builder
	b.WriteString("Here are your previous questions:\n\n")
	recent := previous[max(0, len(previous)-recentQuestions):]
	for i := len(recent) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%d. %q\n", len(recent)-i, recent[i])
	}
	return b.String()
}
