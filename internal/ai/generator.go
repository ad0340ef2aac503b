package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"
)

var (
	ErrDisabled      = errors.New("ai generation is disabled")
	ErrEmptyInput    = errors.New("document has no extractable text")
	ErrEmptyResponse = errors.New("empty response from model")
)

const defaultPrompt = "Summarize the following document. Keep the key facts, figures and conclusions."

const systemInstruction = "You summarize documents for the user who uploaded them. " +
	"Answer only from the provided document text. Reply in the language of the document."

// Generation is a model answer
type Generation struct {
	Text       string
	Model      string
	TokenCount int
}

// Generator produces text from a prompt and a document
type Generator interface {
	Generate(ctx context.Context, prompt, document string) (*Generation, error)
}

type Config struct {
	ProjectID       string
	Location        string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	MaxInputChars   int
}

// Gemini generates text with a Vertex AI Gemini model
type Gemini struct {
	client *genai.Client
	config Config
	logger *slog.Logger
}

func NewGemini(ctx context.Context, config Config, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, config.ProjectID, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
	}

	return &Gemini{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt, document string) (*Generation, error) {
	document = Truncate(strings.TrimSpace(document), g.config.MaxInputChars)
	if document == "" {
		return nil, ErrEmptyInput
	}

	model := g.client.GenerativeModel(g.config.Model)
	model.SetTemperature(g.config.Temperature)
	if g.config.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(g.config.MaxOutputTokens)
	}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(BuildPrompt(prompt, document)))
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	gen, err := fromResponse(resp)
	if err != nil {
		return nil, err
	}
	gen.Model = g.config.Model

	g.logger.Info("Generated text",
		slog.String("model", gen.Model),
		slog.Int("input_chars", len(document)),
		slog.Int("tokens", gen.TokenCount),
	)
	return gen, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// BuildPrompt places the user instruction ahead of the document text
func BuildPrompt(prompt, document string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nDocument:\n")
	sb.WriteString(document)
	return sb.String()
}

// Truncate cuts s to at most max runes. A non-positive max leaves s as is.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func fromResponse(resp *genai.GenerateContentResponse) (*Generation, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	gen := &Generation{Text: sb.String()}
	if resp.UsageMetadata != nil {
		gen.TokenCount = int(resp.UsageMetadata.TotalTokenCount)
	}
	return gen, nil
}

// Disabled is the Generator used when AI is switched off
type Disabled struct{}

func (Disabled) Generate(context.Context, string, string) (*Generation, error) {
	return nil, ErrDisabled
}
