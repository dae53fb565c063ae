// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

const defaultLLMPrompt = "You are a content moderation filter. Decide whether the user's " +
	"message is spam or abusive content. Answer with exactly one word: " +
	"SPAM or VALID. If you cannot decide, answer UNSURE."

// ErrNoChoices is returned when the model returns no completion.
var ErrNoChoices = errors.New("model returned no choices")

// LLMOptions configures a chat-completion classifier.
type LLMOptions struct {
	// BaseURL overrides the API base, e.g. a local OpenAI-compatible server.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// Model is the chat model name. Default gpt-4o-mini.
	Model string `yaml:"model"`

	// KeyEnv names the environment variable that holds the API key.
	KeyEnv string `yaml:"key_env"`

	// SystemPrompt replaces the built-in moderation prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// RequestsPerSecond paces calls. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// LLM asks a chat model to label each sample.
//
// Description:
//
//	Requests use temperature 0 and a single user message. The first word of
//	the answer decides the verdict: "spam" is Spam, "valid", "ham" or
//	"not spam" is Valid, anything else is Indeterminate.
type LLM struct {
	id      string
	model   string
	prompt  string
	key     *memguard.Enclave
	baseURL string
	limiter *rate.Limiter
}

// NewLLM creates the client. A nil key is allowed only with a BaseURL, for
// local servers that do not authenticate.
func NewLLM(id string, opts LLMOptions, key *memguard.Enclave) (*LLM, error) {
	if key == nil && opts.BaseURL == "" {
		return nil, ErrMissingKey
	}
	l := &LLM{
		id:      id,
		model:   opts.Model,
		prompt:  opts.SystemPrompt,
		key:     key,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		limiter: newLimiter(opts.RequestsPerSecond),
	}
	if l.model == "" {
		l.model = openai.GPT4oMini
	}
	if l.prompt == "" {
		l.prompt = defaultLLMPrompt
	}
	return l, nil
}

// ID implements classifier.Adapter.
func (l *LLM) ID() string { return l.id }

// Pace implements classifier.Pacer.
func (l *LLM) Pace(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// client builds a client holding the plaintext key only for one call.
func (l *LLM) client() (*openai.Client, error) {
	token := ""
	if l.key != nil {
		buf, err := l.key.Open()
		if err != nil {
			return nil, fmt.Errorf("open api key: %w", err)
		}
		// buf.String aliases locked memory that Destroy unmaps.
		token = strings.Clone(buf.String())
		buf.Destroy()
	}
	cfg := openai.DefaultConfig(token)
	if l.baseURL != "" {
		cfg.BaseURL = l.baseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

// Classify implements classifier.Adapter.
func (l *LLM) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	client, err := l.client()
	if err != nil {
		return classifier.Indeterminate, err
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0,
		MaxTokens:   4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: l.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return classifier.Indeterminate, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return classifier.Indeterminate, ErrNoChoices
	}
	return parseModelAnswer(resp.Choices[0].Message.Content), nil
}

func parseModelAnswer(answer string) classifier.Verdict {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.Trim(a, " .!\"'`*")
	switch {
	case strings.HasPrefix(a, "not spam"):
		return classifier.Valid
	case strings.HasPrefix(a, "spam"):
		return classifier.Spam
	case strings.HasPrefix(a, "valid"), strings.HasPrefix(a, "ham"):
		return classifier.Valid
	default:
		return classifier.Indeterminate
	}
}
