package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jmylchreest/revoice/internal/models"
)

// Compile-time assertion that OpenAITranslator implements Translator.
var _ Translator = (*OpenAITranslator)(nil)

// chatCompleter is the slice of the OpenAI client the translator uses.
// *openai.Client implements this implicitly.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TranslatorOption is a functional option for configuring an OpenAITranslator.
type TranslatorOption func(*OpenAITranslator)

// WithTranslatorModel sets the chat model. Defaults to gpt-4o-mini.
func WithTranslatorModel(model string) TranslatorOption {
	return func(t *OpenAITranslator) {
		t.model = model
	}
}

// WithTranslatorRetries sets how many times a batch is retried after a
// parse or transport failure before the batch fails.
func WithTranslatorRetries(n int) TranslatorOption {
	return func(t *OpenAITranslator) {
		t.maxRetries = n
	}
}

// WithTranslatorBackoff sets the base retry delay.
func WithTranslatorBackoff(d time.Duration) TranslatorOption {
	return func(t *OpenAITranslator) {
		t.baseDelay = d
	}
}

// OpenAITranslator translates segment batches through a chat-completion
// endpoint. Texts go out as a numbered list and come back the same way;
// a response with the wrong line count is retried with a stricter prompt.
type OpenAITranslator struct {
	client     chatCompleter
	model      string
	maxRetries int
	baseDelay  time.Duration
}

// NewOpenAITranslator creates a translator on top of an OpenAI-compatible
// client.
func NewOpenAITranslator(client chatCompleter, opts ...TranslatorOption) *OpenAITranslator {
	t := &OpenAITranslator{
		client:     client,
		model:      openai.GPT4oMini,
		maxRetries: 3,
		baseDelay:  time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate translates texts from sourceLang to targetLang, returning one
// translation per input in order.
func (t *OpenAITranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, models.E(models.KindCancelled, "translator: aborted", models.ErrCancelled)
			case <-time.After(delay):
			}
		}

		strict := attempt > 0
		out, err := t.translateOnce(ctx, texts, sourceLang, targetLang, strict)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	if ctx.Err() != nil {
		return nil, models.E(models.KindCancelled, "translator: aborted", models.ErrCancelled)
	}
	return nil, models.E(models.KindEngineFailure, "translator: batch failed", lastErr)
}

func (t *OpenAITranslator) translateOnce(ctx context.Context, texts []string, sourceLang, targetLang string, strict bool) ([]string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(sourceLang, targetLang, strict)},
			{Role: openai.ChatMessageRoleUser, Content: numberedList(texts)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion")
	}
	out, err := parseNumberedList(resp.Choices[0].Message.Content, len(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadListShape, err)
	}
	return out, nil
}

// errBadListShape marks a response whose numbered list does not match the
// request. It is retryable with the strict prompt.
var errBadListShape = errors.New("malformed numbered list")

func systemPrompt(sourceLang, targetLang string, strict bool) string {
	src := "the detected source language"
	if sourceLang != "" && sourceLang != models.LangAuto {
		src = sourceLang
	}
	p := fmt.Sprintf(
		"You translate subtitles from %s to %s. The user sends a numbered list. "+
			"Reply with the same numbered list where each line holds only the translation "+
			"of the corresponding input line. Keep the tone conversational and concise so "+
			"the translation can be spoken in roughly the same time as the original.",
		src, targetLang)
	if strict {
		p += " Output nothing except lines of the form \"N. translation\", one per input line, same count."
	}
	return p
}

func numberedList(texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ReplaceAll(text, "\n", " "))
	}
	return b.String()
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.):]\s*(.*)$`)

// parseNumberedList extracts translations from an "N. text" list. Every
// index from 1 to want must appear exactly once.
func parseNumberedList(content string, want int) ([]string, error) {
	out := make([]string, want)
	seen := make([]bool, want)
	current := -1

	for _, line := range strings.Split(content, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			// Continuation of the previous translation.
			if current >= 0 && strings.TrimSpace(line) != "" {
				out[current] += " " + strings.TrimSpace(line)
			}
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > want {
			return nil, fmt.Errorf("line index %q out of range 1..%d", m[1], want)
		}
		if seen[n-1] {
			return nil, fmt.Errorf("duplicate line index %d", n)
		}
		seen[n-1] = true
		current = n - 1
		out[current] = strings.TrimSpace(m[2])
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("missing line %d of %d", i+1, want)
		}
	}
	return out, nil
}

// retryable reports whether a translation error is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, errBadListShape) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport-level failures are worth one more try.
	return true
}
