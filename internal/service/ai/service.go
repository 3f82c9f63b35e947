package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"tutorgate/internal/config"
	"tutorgate/internal/models"
)

const claudeMaxTokens = 3000

// TokenStream yields incremental reply text. Recv returns io.EOF when the reply is complete.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// ChatClient streams replies and runs JSON completions against one provider.
type ChatClient struct {
	provider  string
	modelName string
	chat      model.BaseChatModel
	// jsonChat has the provider's JSON response mode enabled when it offers one
	jsonChat model.BaseChatModel
}

// NewChatClient builds the eino chat model for provider.
func NewChatClient(ctx context.Context, provider string, cfg config.ProviderConfig) (*ChatClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model for provider %s not configured", provider)
	}
	var (
		chat     model.BaseChatModel
		jsonChat model.BaseChatModel
		err      error
	)
	switch provider {
	case "openai":
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			break
		}
		jsonChat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chat, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chat, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	if jsonChat == nil {
		jsonChat = chat
	}
	return newChatClient(provider, cfg.Model, chat, jsonChat), nil
}

func newChatClient(provider, modelName string, chat, jsonChat model.BaseChatModel) *ChatClient {
	return &ChatClient{provider: provider, modelName: modelName, chat: chat, jsonChat: jsonChat}
}

// Model names the model replies come from.
func (c *ChatClient) Model() string {
	return c.modelName
}

// Stream opens a streamed completion over msgs.
func (c *ChatClient) Stream(ctx context.Context, msgs []models.Message) (TokenStream, error) {
	if len(msgs) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	sr, err := c.chat.Stream(ctx, toSchema(msgs))
	if err != nil {
		return nil, fmt.Errorf("generate ai stream failed: %w", err)
	}
	return &tokenStream{sr: sr}, nil
}

// CompleteJSON runs a single non-streamed completion expected to return a JSON object.
func (c *ChatClient) CompleteJSON(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := c.jsonChat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: user},
	}, model.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("json completion failed: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}

func toSchema(msgs []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, msg := range msgs {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: msg.Content})
	}
	return out
}

type tokenStream struct {
	sr *schema.StreamReader[*schema.Message]
}

func (t *tokenStream) Recv() (string, error) {
	chunk, err := t.sr.Recv()
	if err != nil {
		return "", err
	}
	if chunk == nil {
		return "", nil
	}
	return chunk.Content, nil
}

func (t *tokenStream) Close() {
	t.sr.Close()
}
