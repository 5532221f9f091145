// Package copilot answers support questions with a chat model, keeping a
// short per-session history.
package copilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/analytics"
	"github.com/xenking/roofgenius/internal/domain/order"
)

// HistoryWindow is how many previous messages are sent to the model.
const HistoryWindow = 10

// EventInteraction is the analytics event recorded per answered message.
const EventInteraction = "copilot_interaction"

var (
	// ErrEmptyMessage is returned for a blank message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrSessionRequired is returned when no session id is given.
	ErrSessionRequired = errors.New("session_id is required")
)

// Message is one turn of a conversation. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// History stores conversation turns per session.
type History interface {
	// Recent returns up to n of the newest messages, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)
	Append(ctx context.Context, sessionID string, msgs ...Message) error
}

// NoHistory is a History that remembers nothing.
type NoHistory struct{}

func (NoHistory) Recent(context.Context, string, int) ([]Message, error) { return nil, nil }
func (NoHistory) Append(context.Context, string, ...Message) error       { return nil }

// ChatCompleter is the subset of the OpenAI client the copilot uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OrderLister lists a user's orders.
type OrderLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error)
}

// Request is an incoming chat message.
type Request struct {
	Message   string
	SessionID string
	UserID    string
	Role      Role
}

// Reply is the assistant answer.
type Reply struct {
	Text string
	// Action names the built-in action that produced Text, if any.
	Action string
}

// Config holds non-dependency configuration for the Service.
type Config struct {
	Model     string
	MaxTokens int
}

// Service answers copilot messages.
type Service struct {
	client    ChatCompleter
	history   History
	orders    OrderLister
	tracker   analytics.Tracker
	model     string
	maxTokens int
}

// NewService creates a Service. A nil history disables conversation memory;
// a nil tracker disables interaction analytics.
func NewService(cfg Config, client ChatCompleter, history History, orders OrderLister, tracker analytics.Tracker) *Service {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4Turbo
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if history == nil {
		history = NoHistory{}
	}
	return &Service{
		client:    client,
		history:   history,
		orders:    orders,
		tracker:   tracker,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Reply answers a message. Built-in actions answer without calling the model.
func (s *Service) Reply(ctx context.Context, req Request) (*Reply, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	if req.SessionID == "" {
		return nil, ErrSessionRequired
	}
	req.Role = ParseRole(string(req.Role))
	lg := zctx.From(ctx).With(zap.String("session_id", req.SessionID))

	if text, ok := s.orderLookup(ctx, lg, req); ok {
		return &Reply{Text: text, Action: "order_lookup"}, nil
	}

	history, err := s.history.Recent(ctx, req.SessionID, HistoryWindow)
	if err != nil {
		lg.Warn("Copilot history unavailable", zap.Error(err))
		history = nil
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(req.Role),
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	answer := resp.Choices[0].Message.Content

	if err := s.history.Append(ctx, req.SessionID,
		Message{Role: openai.ChatMessageRoleUser, Content: req.Message},
		Message{Role: openai.ChatMessageRoleAssistant, Content: answer},
	); err != nil {
		lg.Warn("Copilot history write failed", zap.Error(err))
	}
	s.track(ctx, lg, req, answer)

	return &Reply{Text: answer}, nil
}

func (s *Service) orderLookup(ctx context.Context, lg *zap.Logger, req Request) (string, bool) {
	if s.orders == nil || req.UserID == "" || !wantsOrderStatus(req.Message) {
		return "", false
	}
	orders, err := s.orders.ListByUser(ctx, req.UserID, 5)
	if err != nil {
		lg.Warn("Copilot order lookup failed", zap.Error(err))
		return "", false
	}
	if len(orders) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Here are your recent orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n- Order #%s: $%s (%s)", o.Number(), o.Amount.StringFixed(2), o.Status)
	}
	return b.String(), true
}

func wantsOrderStatus(msg string) bool {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "order") {
		return false
	}
	for _, w := range []string{"status", "where", "find"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (s *Service) track(ctx context.Context, lg *zap.Logger, req Request, answer string) {
	if s.tracker == nil {
		return
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("user_role", func(e *jx.Encoder) { e.Str(string(req.Role)) })
		e.Field("message_length", func(e *jx.Encoder) { e.Int(len(req.Message)) })
		e.Field("response_length", func(e *jx.Encoder) { e.Int(len(answer)) })
	})
	if err := s.tracker.Track(ctx, analytics.Event{
		Type:       EventInteraction,
		UserID:     req.UserID,
		Data:       e.Bytes(),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		lg.Warn("Copilot analytics failed", zap.Error(err))
	}
}
