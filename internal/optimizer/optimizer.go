// Package optimizer turns raw user requests into clear requirement
// descriptions via an OpenAI-compatible chat completion backend.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ZhenchongLi/oipromot/internal/config"
	"github.com/ZhenchongLi/oipromot/internal/domain"
)

// ThinkingMarker in the input enables thinking mode. It is stripped from
// the text forwarded to the backend.
const ThinkingMarker = "/t"

// placeholderAPIKey is sent when no key is configured; Ollama ignores it
// but the client requires one.
const placeholderAPIKey = "sk-no-key-required"

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// chatClient is the slice of the OpenAI client the optimizer uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Result is a successful optimize or refine turn.
type Result struct {
	Text     string
	Latency  time.Duration
	Thinking bool
}

// Mode returns the request mode the result was produced under.
func (r *Result) Mode() Mode {
	if r.Thinking {
		return ModeThinking
	}
	return ModeStandard
}

// Optimizer issues one backend request per turn and classifies failures.
type Optimizer struct {
	client   chatClient
	model    string
	baseURL  string
	timeout  time.Duration
	profiles *ProfileSet
	now      func() time.Time
}

// New builds an Optimizer over an OpenAI-compatible HTTP backend.
func New(cfg config.AIConfig, profiles *ProfileSet) *Optimizer {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = placeholderAPIKey
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{
		Transport: &thinkingTransport{base: http.DefaultTransport},
	}

	return &Optimizer{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		baseURL:  cfg.BaseURL,
		timeout:  cfg.RequestTimeout,
		profiles: profiles,
		now:      time.Now,
	}
}

// Optimize transforms raw input into a numbered requirement description.
func (o *Optimizer) Optimize(ctx context.Context, input string) (*Result, error) {
	text, thinking := ExtractThinkingMarker(input)
	lang := DetectLanguage(text)
	profile := o.profiles.Lookup(domain.TurnOptimize, lang, modeFor(thinking))

	return o.call(ctx, profile, text, thinking)
}

// Refine adjusts a prior result based on user feedback.
func (o *Optimizer) Refine(ctx context.Context, priorResult, feedback string) (*Result, error) {
	text, thinking := ExtractThinkingMarker(feedback)
	lang := DetectLanguage(text)
	profile := o.profiles.Lookup(domain.TurnRefine, lang, modeFor(thinking))

	var userMessage string
	if lang == LanguageChinese {
		userMessage = fmt.Sprintf("之前的需求描述：%s\n用户反馈：%s", priorResult, text)
	} else {
		userMessage = fmt.Sprintf("Previous requirement description: %s\nUser feedback: %s", priorResult, text)
	}

	return o.call(ctx, profile, userMessage, thinking)
}

func (o *Optimizer) call(ctx context.Context, profile Profile, userMessage string, thinking bool) (*Result, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	// The backend is told whether to think on every call; the marker
	// never reaches it as text.
	ctx = withThinking(ctx, thinking)

	start := o.now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: profile.Template},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	})
	latency := o.now().Sub(start)

	if err != nil {
		classified := o.classify(err, latency)
		slog.Warn("backend call failed",
			"kind", classified.Kind,
			"latency", latency,
			"error", err)
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{
			Kind:       KindUnknown,
			Message:    "backend returned no choices",
			Suggestion: "check that the backend is OpenAI-compatible",
			Latency:    latency,
		}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if !thinking {
		// Some backends emit reasoning inline even when not asked to.
		text = strings.TrimSpace(thinkBlockRe.ReplaceAllString(text, ""))
	}

	return &Result{Text: text, Latency: latency, Thinking: thinking}, nil
}

// ExtractThinkingMarker reports whether the input carries the thinking
// marker and returns the input with the marker removed.
func ExtractThinkingMarker(input string) (string, bool) {
	if !strings.Contains(input, ThinkingMarker) {
		return strings.TrimSpace(input), false
	}
	cleaned := strings.ReplaceAll(input, ThinkingMarker, " ")
	return strings.TrimSpace(strings.Join(strings.Fields(cleaned), " ")), true
}

func modeFor(thinking bool) Mode {
	if thinking {
		return ModeThinking
	}
	return ModeStandard
}

// fillerPrefixes are conversational openers removed by SimpleClean.
var fillerPrefixes = []string{
	"please help me", "can you help me", "i need help with",
	"i want to", "i would like to", "could you", "can you",
	"请帮我", "你能帮我", "我想要", "我需要", "能不能", "可以吗",
}

// SimpleClean strips common filler openers from raw input. It is an
// offline helper for the CLI; it never replaces a backend call.
func SimpleClean(input string) string {
	cleaned := strings.TrimSpace(input)
	lowered := strings.ToLower(cleaned)
	for _, prefix := range fillerPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}
	if cleaned != "" {
		runes := []rune(cleaned)
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		cleaned = string(runes)
	}
	return cleaned
}
