// Package alert delivers integrity faults to operators over a Slack
// incoming webhook.
package alert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

const (
	// maxRetries is the max number of retries for rate-limited posts.
	maxRetries = 3
	// defaultTimeout bounds one alert including retries.
	defaultTimeout = 30 * time.Second
	// faultColor marks integrity faults in Slack.
	faultColor = "#d00000"
)

// postFunc sends a webhook message; swapped out in tests.
type postFunc func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// SlackOpts holds parameters for creating a Slack alerter.
type SlackOpts struct {
	WebhookURL string
	PeerID     string // shown in every alert
	Timeout    time.Duration
	// For testing: inject a poster instead of the real webhook call.
	Post postFunc
}

// Slack posts integrity faults to a webhook.
type Slack struct {
	url     string
	peerID  string
	timeout time.Duration
	post    postFunc
}

// NewSlack creates a Slack alerter.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("alert: slack webhook url is required")
	}
	s := &Slack{
		url:     opts.WebhookURL,
		peerID:  opts.PeerID,
		timeout: opts.Timeout,
		post:    opts.Post,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.post == nil {
		s.post = slackapi.PostWebhookContext
	}
	return s, nil
}

// IntegrityFault posts a fault about subject.
func (s *Slack) IntegrityFault(subject, detail string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	msg := buildMessage(s.peerID, subject, detail, time.Now())
	err := retryOnRateLimit(ctx, func() error {
		return s.post(ctx, s.url, msg)
	})
	if err != nil {
		return fmt.Errorf("alert: slack: %w", err)
	}
	return nil
}

func buildMessage(peerID, subject, detail string, at time.Time) *slackapi.WebhookMessage {
	title := "Integrity fault: " + subject
	att := slackapi.Attachment{
		Title:    title,
		Text:     detail,
		Color:    faultColor,
		Fallback: title,
	}
	if peerID != "" {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: "Peer", Value: peerID, Short: true})
	}
	att.Fields = append(att.Fields, slackapi.AttachmentField{
		Title: "Time",
		Value: at.UTC().Format(time.RFC3339),
		Short: true,
	})
	return &slackapi.WebhookMessage{
		Text:        title,
		Attachments: []slackapi.Attachment{att},
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
