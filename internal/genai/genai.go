// Package genai provides the AI response generator for pastoral conversations,
// backed by the OpenAI API.
//
// The core treats it as an opaque call: conversation history in, candidate
// reply plus a confidence score in [0,1] out.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haventree/shepherd/internal/models"
)

// ErrNoChoicesReturned indicates the completion came back empty.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ConfidenceThreshold is the fixed score below which a reply is flagged for
// mandatory human follow-up.
const ConfidenceThreshold = 0.7

// Reply is a generated candidate message with its confidence score.
type Reply struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// ClientInterface defines the generator operations the conversation manager
// depends on. Satisfied by Client and by test mocks.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GenerateReply(ctx context.Context, conv *models.PastoralConversation) (Reply, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openAIChatService adapts the real OpenAI client to chatService.
type openAIChatService struct {
	client openai.Client
}

func (s *openAIChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model string
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{chat: &openAIChatService{client: cli}, model: cfg.Model}, nil
}

// GenerateWithMessages runs a chat completion over prepared messages and
// returns the text of the first choice.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateReply builds the chat context from a conversation's history and
// category, generates a candidate reply, and scores its confidence.
func (c *Client) GenerateReply(ctx context.Context, conv *models.PastoralConversation) (Reply, error) {
	messages := buildConversationMessages(conv)
	content, err := c.GenerateWithMessages(ctx, messages)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{
		Content:    content,
		Confidence: scoreConfidence(conv.Category, content),
	}
	slog.Debug("GenAI reply generated", "conversationID", conv.ID, "confidence", reply.Confidence)
	return reply, nil
}

// buildConversationMessages maps the conversation history onto chat messages,
// with a category-aware system prompt first.
func buildConversationMessages(conv *models.PastoralConversation) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	messages = append(messages, openai.SystemMessage(systemPromptFor(conv.Category)))
	if conv.IsAnonymous {
		messages = append(messages, openai.SystemMessage("The member has chosen to remain anonymous. Do not ask for their name or identifying details."))
	}
	for _, msg := range conv.Messages {
		switch msg.Sender {
		case models.SenderUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.SenderAI, models.SenderLeader:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// systemPromptFor returns the assistant instructions for a help category.
func systemPromptFor(category models.HelpCategory) string {
	base := "You are a caring pastoral assistant for a church community. " +
		"Respond with warmth, scripture-informed encouragement, and practical next steps. " +
		"You are a first responder, not a replacement for a human leader: when a concern " +
		"needs a pastor, say that a leader will follow up."
	switch category {
	case models.CategoryCrisis:
		return base + " This conversation is marked as a crisis. Keep the member safe, " +
			"encourage them to reach emergency services if there is immediate danger, and " +
			"reassure them that a leader is being alerted right now."
	case models.CategoryGrief:
		return base + " The member is grieving. Prioritize presence and comfort over advice."
	case models.CategoryMarriage:
		return base + " The member is asking about marriage or relationship difficulties."
	case models.CategoryAddiction:
		return base + " The member is dealing with addiction. Be non-judgmental and point toward recovery support."
	default:
		return base
	}
}

// hedgePhrases mark replies where the model is signalling uncertainty.
var hedgePhrases = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i cannot help",
	"i can't help",
	"beyond my ability",
	"i'm unable",
	"consult a professional",
}

// scoreConfidence derives a deterministic confidence score from the category
// and the reply text. Crisis replies always score below the follow-up
// threshold so a human is pulled in.
func scoreConfidence(category models.HelpCategory, content string) float64 {
	if category == models.CategoryCrisis {
		return 0.4
	}
	score := 0.9
	lower := strings.ToLower(content)
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			score -= 0.3
			break
		}
	}
	if len(content) < 40 {
		score -= 0.2
	}
	if score < 0 {
		score = 0
	}
	return score
}
