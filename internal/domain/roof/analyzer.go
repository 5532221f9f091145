package roof

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "You are an expert roofing contractor with 30 years of experience. " +
	"Provide detailed, accurate analysis of roof conditions."

// ChatCompleter is the subset of the OpenAI client the analyzer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AnalyzerConfig holds non-dependency configuration for the Analyzer.
type AnalyzerConfig struct {
	// Model is a vision-capable chat model.
	Model     string
	MaxTokens int
}

// Analyzer sends roof photos to a vision model.
type Analyzer struct {
	client    ChatCompleter
	model     string
	maxTokens int
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig, client ChatCompleter) *Analyzer {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	return &Analyzer{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

// Analyze runs a roof analysis. An unparsable model answer yields the
// fallback analysis rather than an error; cost ranges are always computed.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	contentType, err := validateImage(req)
	if err != nil {
		return nil, err
	}

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: Prompt(req.Type, req.Address)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vision completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision completion returned no choices")
	}

	analysis, err := ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		zctx.From(ctx).Warn("Unparsable roof analysis, using defaults", zap.Error(err))
		analysis = fallbackAnalysis()
	}
	analysis.Model = resp.Model
	EstimateCosts(&analysis, req.Address)
	return &analysis, nil
}

func validateImage(req Request) (string, error) {
	if len(req.Image) == 0 {
		return "", ErrEmptyImage
	}
	if len(req.Image) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	ct := http.DetectContentType(req.Image)
	if !strings.HasPrefix(ct, "image/") {
		return "", errors.Wrapf(ErrUnsupportedImage, "detected %s", ct)
	}
	return ct, nil
}
