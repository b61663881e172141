// Package generate produces grounded answers and flashcards from retrieved
// study material, degrading to template output when no provider responds.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/study-core/internal/llm"
	"github.com/bull/study-core/internal/search"
	"github.com/bull/study-core/internal/storage"
)

const answerSystemPrompt = "You are a study assistant. Answer questions using only the provided study material. " +
	"If the material does not contain the answer, say so instead of guessing. Be concise and accurate."

// Confidence tuning. Grounded answers start high and are pulled down by
// weak retrieval scores; ungrounded answers start low.
const (
	confidenceWithContext    = 0.9
	confidenceWithoutContext = 0.3
	confidenceDegraded       = 0.2
	confidenceCap            = 0.95

	contextMaxChunks = 5
	contextMaxChars  = 8000
)

// Answer is a generated answer with its provenance.
type Answer struct {
	Answer     string
	Sources    []*storage.SearchResult
	Confidence float64
	Provider   string
	Degraded   bool
}

// AnswerService answers questions against a topic's indexed documents.
type AnswerService struct {
	search *search.Service
	orch   *llm.Orchestrator
	logger *zap.Logger
}

// NewAnswerService wires an answer service. logger may be nil.
func NewAnswerService(searchSvc *search.Service, orch *llm.Orchestrator, logger *zap.Logger) *AnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerService{search: searchSvc, orch: orch, logger: logger}
}

// GenerateAnswer retrieves context for the question, asks the provider
// chain, and falls back to a template answer built from the retrieved
// material when every provider is unavailable.
func (s *AnswerService) GenerateAnswer(ctx context.Context, topicID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question is empty")
	}

	retrieved, err := s.search.RelevantContext(ctx, topicID, question, contextMaxChunks, contextMaxChars)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	result, err := s.orch.Generate(ctx, llm.Request{
		System:      answerSystemPrompt,
		Prompt:      answerPrompt(question, retrieved.Text),
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrAllProvidersUnavailable) {
			return nil, err
		}
		s.orch.NoteTemplateFallback()
		s.logger.Warn("answering degraded to template", zap.String("topic_id", topicID))
		return &Answer{
			Answer:     llm.FallbackAnswer(question, retrieved.Text),
			Sources:    retrieved.Sources,
			Confidence: confidenceDegraded,
			Degraded:   true,
		}, nil
	}

	return &Answer{
		Answer:     strings.TrimSpace(result.Response.Text),
		Sources:    retrieved.Sources,
		Confidence: confidence(retrieved),
		Provider:   result.Provider,
		Degraded:   result.Degraded,
	}, nil
}

func answerPrompt(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return fmt.Sprintf("No study material matched this question. Say that the uploaded documents do not cover it, then answer briefly from general knowledge, clearly labeled as such.\n\nQuestion: %s", question)
	}
	return fmt.Sprintf("Study material:\n\n%s\n\nQuestion: %s\n\nAnswer using the study material above. Mention which source each part of the answer comes from.", contextText, question)
}

// confidence derives an indicator from retrieval quality: a high base when
// grounded in sources, scaled by the mean similarity score, capped below 1.
func confidence(retrieved *search.Context) float64 {
	if len(retrieved.Sources) == 0 {
		return confidenceWithoutContext
	}
	c := confidenceWithContext * (0.5 + retrieved.AvgScore/2)
	if c > confidenceCap {
		c = confidenceCap
	}
	if c < confidenceWithoutContext {
		c = confidenceWithoutContext
	}
	return c
}
