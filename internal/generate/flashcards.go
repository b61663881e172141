package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/study-core/internal/llm"
)

// Card styles recognized by the generator.
const (
	StyleBasic          = "basic"
	StyleCloze          = "cloze"
	StyleMultipleChoice = "multiple_choice"
)

const (
	// DefaultCardCount is used when the request leaves count unset.
	DefaultCardCount = 5
	// MaxCardCount bounds one generation request.
	MaxCardCount = 20
)

// Flashcard is one generated card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Type  string `json:"type"`
}

const flashcardSystemPrompt = "You are a flashcard author for students. You respond with a JSON array only, no prose before or after."

var stylePrompts = map[string]string{
	StyleBasic: "Write question-and-answer flashcards. The front is a clear question, the back is a concise answer.",
	StyleCloze: "Write cloze-deletion flashcards. The front is a sentence from the material with a key term replaced by '___', the back is the missing term.",
	StyleMultipleChoice: "Write multiple-choice flashcards. The front is a question followed by four options labeled A-D, the back names the correct option letter and explains why.",
}

// FlashcardService turns source material into flashcards.
type FlashcardService struct {
	orch   *llm.Orchestrator
	logger *zap.Logger
}

// NewFlashcardService wires a flashcard service. logger may be nil.
func NewFlashcardService(orch *llm.Orchestrator, logger *zap.Logger) *FlashcardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlashcardService{orch: orch, logger: logger}
}

// FlashcardResult carries the cards plus their provenance.
type FlashcardResult struct {
	Cards    []Flashcard
	Provider string
	Degraded bool
}

// GenerateFlashcards produces count cards of the given style from content.
// When every provider is unavailable it degrades to template cards built
// from the content's key concepts.
func (s *FlashcardService) GenerateFlashcards(ctx context.Context, content, style string, count int) (*FlashcardResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("content is empty")
	}
	if count <= 0 {
		count = DefaultCardCount
	}
	if count > MaxCardCount {
		count = MaxCardCount
	}
	styleInstr, ok := stylePrompts[style]
	if !ok {
		style = StyleBasic
		styleInstr = stylePrompts[StyleBasic]
	}

	result, err := s.orch.Generate(ctx, llm.Request{
		System:      flashcardSystemPrompt,
		Prompt:      flashcardPrompt(content, styleInstr, count),
		Temperature: 0.7,
		MaxTokens:   2048,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrAllProvidersUnavailable) {
			return nil, err
		}
		s.orch.NoteTemplateFallback()
		s.logger.Warn("flashcard generation degraded to templates")
		return &FlashcardResult{Cards: templateCards(content, count), Degraded: true}, nil
	}

	cards, err := ParseFlashcards(result.Response.Text, style)
	if err != nil {
		// The provider answered but the payload was unusable. Template
		// cards beat an error for the student.
		s.orch.NoteTemplateFallback()
		s.logger.Warn("unparseable flashcard response, degrading to templates",
			zap.String("provider", result.Provider),
			zap.Error(err))
		return &FlashcardResult{Cards: templateCards(content, count), Degraded: true}, nil
	}
	if len(cards) > count {
		cards = cards[:count]
	}
	return &FlashcardResult{Cards: cards, Provider: result.Provider, Degraded: result.Degraded}, nil
}

func flashcardPrompt(content, styleInstr string, count int) string {
	return fmt.Sprintf(
		"%s\n\nCreate exactly %d flashcards from the study material below. "+
			"Respond with a JSON array of objects with \"front\" and \"back\" string fields.\n\nStudy material:\n\n%s",
		styleInstr, count, content)
}

// ParseFlashcards extracts a JSON card array from model output. Providers
// often wrap the array in prose or code fences, so parsing starts at the
// first '[' and ends at the last ']'.
func ParseFlashcards(raw, style string) ([]Flashcard, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in response")
	}

	var cards []Flashcard
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cards); err != nil {
		return nil, fmt.Errorf("decoding card array: %w", err)
	}

	out := cards[:0]
	for _, c := range cards {
		c.Front = strings.TrimSpace(c.Front)
		c.Back = strings.TrimSpace(c.Back)
		if c.Front == "" || c.Back == "" {
			continue
		}
		if c.Type == "" {
			c.Type = style
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.New("no usable cards in response")
	}
	return out, nil
}

func templateCards(content string, count int) []Flashcard {
	fallback := llm.FallbackFlashcards(content, count)
	cards := make([]Flashcard, 0, len(fallback))
	for _, f := range fallback {
		cards = append(cards, Flashcard{Front: f.Front, Back: f.Back, Type: f.Type})
	}
	return cards
}
