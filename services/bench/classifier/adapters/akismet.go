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
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

var (
	// ErrMissingKey is returned when a remote adapter has no API key.
	ErrMissingKey = errors.New("api key not configured")

	// ErrInvalidKey is returned when the service rejects the API key.
	ErrInvalidKey = errors.New("api key rejected")
)

// AkismetOptions configures the Akismet comment-check client.
type AkismetOptions struct {
	// Endpoint is the REST base URL. Default https://rest.akismet.com.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Blog is the site URL registered with the key.
	Blog string `yaml:"blog" validate:"required,url"`

	// KeyEnv names the environment variable that holds the API key.
	KeyEnv string `yaml:"key_env"`

	// CommentType is sent as comment_type. Default "comment".
	CommentType string `yaml:"comment_type"`

	// RequestsPerSecond paces calls. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	// VerifyKey calls verify-key at construction.
	VerifyKey bool `yaml:"verify_key"`

	// Timeout bounds one HTTP request. Default 15s.
	Timeout time.Duration `yaml:"timeout"`
}

// Akismet classifies samples with the Akismet comment-check API.
//
// Description:
//
//	The API answers "true" for spam and "false" for valid. An "invalid"
//	body or a non-2xx status is an error. Any other body is Indeterminate.
//	The key stays sealed in a memguard enclave and is opened only for the
//	duration of one request.
//
// Thread Safety:
//
//	Not safe for concurrent use. Adapters are driven one sample at a time.
type Akismet struct {
	id          string
	endpoint    string
	blog        string
	commentType string
	key         *memguard.Enclave
	limiter     *rate.Limiter
	client      *http.Client
}

// NewAkismet creates a client. key must not be nil.
func NewAkismet(ctx context.Context, id string, opts AkismetOptions, key *memguard.Enclave) (*Akismet, error) {
	if key == nil {
		return nil, ErrMissingKey
	}
	a := &Akismet{
		id:          id,
		endpoint:    strings.TrimRight(opts.Endpoint, "/"),
		blog:        opts.Blog,
		commentType: opts.CommentType,
		key:         key,
		limiter:     newLimiter(opts.RequestsPerSecond),
		client:      &http.Client{Timeout: opts.Timeout},
	}
	if a.endpoint == "" {
		a.endpoint = "https://rest.akismet.com"
	}
	if a.commentType == "" {
		a.commentType = "comment"
	}
	if a.client.Timeout <= 0 {
		a.client.Timeout = 15 * time.Second
	}
	if opts.VerifyKey {
		if err := a.Verify(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// newLimiter returns nil when rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// ID implements classifier.Adapter.
func (a *Akismet) ID() string { return a.id }

// Pace implements classifier.Pacer.
func (a *Akismet) Pace(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// Verify checks the key with the verify-key endpoint.
func (a *Akismet) Verify(ctx context.Context) error {
	body, err := a.post(ctx, "/1.1/verify-key", url.Values{"blog": {a.blog}})
	if err != nil {
		return err
	}
	if body != "valid" {
		return fmt.Errorf("%w: verify-key returned %q", ErrInvalidKey, body)
	}
	return nil
}

// Classify implements classifier.Adapter.
func (a *Akismet) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	form := url.Values{
		"blog":            {a.blog},
		"user_ip":         {"127.0.0.1"},
		"comment_type":    {a.commentType},
		"comment_content": {text},
	}
	body, err := a.post(ctx, "/1.1/comment-check", form)
	if err != nil {
		return classifier.Indeterminate, err
	}
	switch body {
	case "true":
		return classifier.Spam, nil
	case "false":
		return classifier.Valid, nil
	case "invalid":
		return classifier.Indeterminate, fmt.Errorf("%w: comment-check returned invalid", ErrInvalidKey)
	default:
		return classifier.Indeterminate, nil
	}
}

func (a *Akismet) post(ctx context.Context, path string, form url.Values) (string, error) {
	buf, err := a.key.Open()
	if err != nil {
		return "", fmt.Errorf("open api key: %w", err)
	}
	// buf.String aliases locked memory, so the form is encoded before Destroy.
	form.Set("api_key", buf.String())
	body := form.Encode()
	form.Del("api_key")
	buf.Destroy()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "spambench/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("akismet %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read akismet response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("akismet %s: status %d", path, resp.StatusCode)
	}
	return strings.TrimSpace(string(raw)), nil
}
