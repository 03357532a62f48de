package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/mashiike/omnillm"
	"github.com/mashiike/omnillm/imageutil"
	"github.com/mashiike/slogutils"
)

type CLI struct {
	LogFormat string `help:"Log format" enum:"json,text" default:"json"`
	Color     bool   `help:"Enable color output" negatable:"" default:"true"`
	Debug     bool   `help:"Enable debug mode" env:"DEBUG"`
	Verbose   bool   `help:"Enable log verbose mode" env:"VERBOSE"`

	Provider string `help:"LLM provider (openai, anthropic, gemini)" env:"OMNILLM_PROVIDER" default:"openai"`
	APIKey   string `help:"API key for the provider" env:"OMNILLM_API_KEY"`
	Endpoint string `help:"Base endpoint URL (defaults to the provider's public API)" env:"OMNILLM_ENDPOINT"`
	Model    string `help:"Model identifier" env:"OMNILLM_MODEL"`

	Chat    ChatOption  `cmd:"" help:"Send a chat request"`
	Embed   EmbedOption `cmd:"" help:"Embed input texts"`
	Version struct{}    `cmd:"" help:"Show version"`
}

type ChatOption struct {
	Prompt    string   `arg:"" help:"Prompt text"`
	System    string   `help:"System prompt"`
	Image     []string `help:"Image sources (path, URL or base64)"`
	Output    string   `help:"Directory to save image parts" default:"./output"`
	MaxTokens int      `help:"max_tokens for providers that take one"`
}

type EmbedOption struct {
	Inputs []string `arg:"" help:"Texts to embed"`
}

func newLogger(level slog.Level, format string, c bool) *slog.Logger {
	var f func(io.Writer, *slog.HandlerOptions) slog.Handler
	switch format {
	case "text":
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewTextHandler(w, ho)
		}
	default:
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, ho)
		}
	}
	var modifierFuncs map[slog.Level]slogutils.ModifierFunc
	if c {
		modifierFuncs = map[slog.Level]slogutils.ModifierFunc{
			slog.LevelDebug: slogutils.Color(color.FgBlack),
			slog.LevelInfo:  nil,
			slog.LevelWarn:  slogutils.Color(color.FgYellow),
			slog.LevelError: slogutils.Color(color.FgRed, color.Bold),
		}
	}
	middleware := slogutils.NewMiddleware(
		f,
		slogutils.MiddlewareOptions{
			Writer:        os.Stderr,
			ModifierFuncs: modifierFuncs,
			HandlerOptions: &slog.HandlerOptions{
				Level: level,
			},
		},
	)
	logger := slog.New(middleware)
	return logger
}

func (c *CLI) Run(ctx context.Context) int {
	k := kong.Parse(c,
		kong.Name("omnillm"),
		kong.Description("Omnillm is a multi-vendor LLM chat/embedding client."),
		kong.UsageOnError(),
	)
	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	logger := newLogger(logLevel, c.LogFormat, c.Color)
	if c.Verbose {
		slog.SetDefault(logger)
	}
	if err := c.run(ctx, k, logger); err != nil {
		logger.Error("runtime error", "details", err)
		return 1
	}
	return 0
}

func (c *CLI) run(ctx context.Context, k *kong.Context, logger *slog.Logger) error {
	cmd := k.Command()
	if cmd == "version" {
		fmt.Printf("omnillm version %s\n", omnillm.Version)
		return nil
	}
	switch cmd {
	case "chat <prompt>":
		client, err := c.newClient(omnillm.CallTypeChat)
		if err != nil {
			return err
		}
		return c.runChat(ctx, client, logger)
	case "embed <inputs>":
		client, err := c.newClient(omnillm.CallTypeEmbedding)
		if err != nil {
			return err
		}
		return c.runEmbed(ctx, client, logger)
	default:
		return fmt.Errorf("unknown command: %s", k.Command())
	}
}

func (c *CLI) newClient(callType omnillm.CallType) (omnillm.Client, error) {
	provider, err := omnillm.ParseProvider(c.Provider)
	if err != nil {
		return omnillm.Client{}, err
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		switch provider {
		case omnillm.ProviderOpenAI:
			endpoint = omnillm.DefaultOpenAIEndpoint
		case omnillm.ProviderAnthropic:
			endpoint = omnillm.DefaultAnthropicEndpoint
		case omnillm.ProviderGemini:
			endpoint = omnillm.DefaultGeminiEndpoint
		}
	}
	if c.APIKey == "" {
		return omnillm.Client{}, fmt.Errorf("api key is required (set --api-key or OMNILLM_API_KEY)")
	}
	if c.Model == "" {
		return omnillm.Client{}, fmt.Errorf("model is required")
	}
	return omnillm.NewClient(provider, c.APIKey, endpoint, c.Model, callType), nil
}

func (c *CLI) runChat(ctx context.Context, client omnillm.Client, logger *slog.Logger) error {
	client.MaxTokens = c.Chat.MaxTokens
	chat, err := omnillm.GetLLMChat(client)
	if err != nil {
		return fmt.Errorf("bind chat: %w", err)
	}
	parts := make([]omnillm.ContentPart, 0, 1+len(c.Chat.Image))
	parts = append(parts, omnillm.TextPart(c.Chat.Prompt))
	for _, source := range c.Chat.Image {
		part, err := omnillm.ImagePartContext(ctx, source)
		if err != nil {
			return fmt.Errorf("image %s: %w", source, err)
		}
		parts = append(parts, part)
	}
	messages := make([]omnillm.Message, 0, 2)
	if c.Chat.System != "" {
		messages = append(messages, omnillm.NewMessage("", omnillm.RoleSystem, omnillm.TextPart(c.Chat.System)))
	}
	messages = append(messages, omnillm.NewMessage("", omnillm.RoleUser, parts...))
	logger.InfoContext(ctx, "chat", "client", client)
	reply, err := chat(ctx, messages)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	images := make([][]byte, 0, len(reply))
	for _, part := range reply {
		switch part.Type {
		case omnillm.PartTypeText:
			fmt.Println(part.Text)
		case omnillm.PartTypeBinary:
			images = append(images, part.Data)
		}
	}
	if len(images) > 0 {
		paths, err := imageutil.SaveToDir(images, c.Chat.Output)
		if err != nil {
			return fmt.Errorf("save images: %w", err)
		}
		for _, path := range paths {
			logger.InfoContext(ctx, "saved image", "path", path)
		}
	}
	return nil
}

func (c *CLI) runEmbed(ctx context.Context, client omnillm.Client, logger *slog.Logger) error {
	if !client.Provider.SupportsEmbedding() {
		return fmt.Errorf("provider %s does not support embeddings", client.Provider)
	}
	embed, err := omnillm.GetLLMEmbedding(client)
	if err != nil {
		return fmt.Errorf("bind embedding: %w", err)
	}
	logger.InfoContext(ctx, "embed", "client", client, "inputs", len(c.Embed.Inputs))
	vectors, err := embed(ctx, c.Embed.Inputs)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, vector := range vectors {
		if err := enc.Encode(vector); err != nil {
			return fmt.Errorf("encode vector: %w", err)
		}
	}
	return nil
}
