// Package llm talks to an OpenAI-compatible model API for chat, vision and
// embeddings. Gemini's OpenAI endpoint is the default target.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Jayanthmurala/EduAssist/internal/config"
)

var (
	ErrNotConfigured = errors.New("AI_API_KEY is not configured")
	ErrRateLimited   = errors.New("AI service is rate limited (429 Too Many Requests); try again in about a minute")
	ErrEmptyResponse = errors.New("no response from AI")
)

// zeroTemperature stands in for 0: the request struct drops a literal zero
// from the wire, which lets the server pick its own default.
const zeroTemperature = math.SmallestNonzeroFloat32

// Message is one chat message. ImageURL, when set, is attached as a
// high-detail image part after the text.
type Message struct {
	Role     string
	Content  string
	ImageURL string
}

const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

type ChatOptions struct {
	JSON      bool // response_format=json_object
	MaxTokens int
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
}

func New(cfg config.AIConfig) *Client {
	c := &Client{chatModel: cfg.ChatModel, embedModel: cfg.EmbedModel}
	if cfg.APIKey == "" {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

// NewWithHTTPClient points the client at baseURL using hc; tests use it with
// an httptest server.
func NewWithHTTPClient(cfg config.AIConfig, hc *http.Client) *Client {
	c := New(cfg)
	if c.api == nil {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	oc.HTTPClient = hc
	c.api = openai.NewClientWithConfig(oc)
	return c
}

func (c *Client) Configured() bool   { return c != nil && c.api != nil }
func (c *Client) ChatModel() string  { return c.chatModel }
func (c *Client) EmbedModel() string { return c.embedModel }

// Chat sends messages at temperature 0 and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts ChatOptions) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toOpenAI(msgs),
		Temperature: zeroTemperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapErr(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: %w", ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAI(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ImageURL == "" {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role: m.Role,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: m.Content},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    m.ImageURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		})
	}
	return out
}

// wrapErr tags upstream 429s with ErrRateLimited and keeps the raw message
// for everything else.
func wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
	}
	return err
}
