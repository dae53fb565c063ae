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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/AleutianAI/spambench/services/bench/classifier"
)

const spamcVersion = "SPAMC/1.5"

// ErrSpamdProtocol is returned for a response that does not follow the
// SPAMD protocol.
var ErrSpamdProtocol = errors.New("spamd protocol error")

// SpamdOptions configures the SpamAssassin daemon client.
type SpamdOptions struct {
	// Address is host:port of spamd. Default localhost:783.
	Address string `yaml:"address"`

	// User is sent in the User header when set.
	User string `yaml:"user"`

	// Timeout bounds one CHECK round trip, dial included. Default 10s.
	Timeout time.Duration `yaml:"timeout"`

	// SkipPing disables the PING handshake at construction.
	SkipPing bool `yaml:"skip_ping"`
}

// Spamd asks a SpamAssassin daemon whether a message is spam.
//
// Description:
//
//	The client is callback-shaped: Check starts the exchange and delivers
//	the result later. Classify bridges it to a blocking call with
//	classifier.Await, so a spamd that never answers surfaces as a timeout.
//	The "Spam:" response header maps True/Yes to Spam and False/No to Valid;
//	a response without it is Indeterminate.
type Spamd struct {
	id      string
	address string
	user    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewSpamd creates a client and, unless disabled, checks that spamd answers
// PING.
func NewSpamd(ctx context.Context, id string, opts SpamdOptions) (*Spamd, error) {
	s := &Spamd{
		id:      id,
		address: opts.Address,
		user:    opts.User,
		timeout: opts.Timeout,
	}
	if s.address == "" {
		s.address = "localhost:783"
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if !opts.SkipPing {
		pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ID implements classifier.Adapter.
func (s *Spamd) ID() string { return s.id }

// Ping performs the PING/PONG handshake.
func (s *Spamd) Ping(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "PING %s\r\n\r\n", spamcVersion); err != nil {
		return fmt.Errorf("spamd ping: %w", err)
	}
	status, _, err := readSpamdResponse(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("spamd ping: %w", err)
	}
	if !strings.HasSuffix(status, "PONG") {
		return fmt.Errorf("%w: unexpected ping reply %q", ErrSpamdProtocol, status)
	}
	return nil
}

// Check runs a CHECK for text and calls done with the verdict. done is called
// exactly once, from another goroutine.
func (s *Spamd) Check(ctx context.Context, text string, done classifier.Callback) {
	go func() {
		done(s.check(ctx, text))
	}()
}

// Classify implements classifier.Adapter.
func (s *Spamd) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	return classifier.Await(ctx, s.timeout, func(ctx context.Context, done classifier.Callback) {
		s.Check(ctx, text, done)
	})
}

func (s *Spamd) dial(ctx context.Context) (net.Conn, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("dial spamd %s: %w", s.address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func (s *Spamd) check(ctx context.Context, text string) (classifier.Verdict, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return classifier.Indeterminate, err
	}
	defer conn.Close()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	msg := asMessage(text)
	var req strings.Builder
	fmt.Fprintf(&req, "CHECK %s\r\n", spamcVersion)
	fmt.Fprintf(&req, "Content-length: %d\r\n", len(msg))
	if s.user != "" {
		fmt.Fprintf(&req, "User: %s\r\n", s.user)
	}
	req.WriteString("\r\n")
	req.WriteString(msg)

	if _, err := io.WriteString(conn, req.String()); err != nil {
		return classifier.Indeterminate, fmt.Errorf("spamd write: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	_, headers, err := readSpamdResponse(bufio.NewReader(conn))
	if err != nil {
		return classifier.Indeterminate, err
	}
	return parseSpamHeader(headers["spam"]), nil
}

// asMessage wraps a bare sample in a minimal RFC 5322 envelope.
func asMessage(text string) string {
	return "Subject: spambench sample\r\n\r\n" + text + "\r\n"
}

// readSpamdResponse reads "SPAMD/x.y <code> <msg>" and the headers up to the
// blank line. A non-zero code is an error.
func readSpamdResponse(r *bufio.Reader) (string, map[string]string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", nil, fmt.Errorf("spamd read: %w", err)
	}
	status := strings.TrimSpace(line)
	fields := strings.Fields(status)
	if len(fields) < 3 || !strings.HasPrefix(fields[0], "SPAMD/") {
		return "", nil, fmt.Errorf("%w: bad status line %q", ErrSpamdProtocol, status)
	}
	if fields[1] != "0" {
		return status, nil, fmt.Errorf("%w: spamd returned %s", ErrSpamdProtocol, strings.Join(fields[1:], " "))
	}

	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if key, value, ok := strings.Cut(trimmed, ":"); ok {
			headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
		if err != nil {
			break
		}
	}
	return status, headers, nil
}

// parseSpamHeader maps "True ; 15.0 / 5.0" style values to a verdict.
func parseSpamHeader(value string) classifier.Verdict {
	flag, _, _ := strings.Cut(value, ";")
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "true", "yes":
		return classifier.Spam
	case "false", "no":
		return classifier.Valid
	default:
		return classifier.Indeterminate
	}
}
