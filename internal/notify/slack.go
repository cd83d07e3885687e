package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

// Poster is the part of the Slack client used here.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts attendance messages to an info channel and operator alerts to
// an error channel.
type Slack struct {
	client       Poster
	InfoChannel  string
	ErrorChannel string
}

// NewSlack creates a messenger. A nil client is built from token.
func NewSlack(client Poster, token, infoChannel, errorChannel string) *Slack {
	if client == nil {
		client = slack.New(token)
	}
	return &Slack{client: client, InfoChannel: infoChannel, ErrorChannel: errorChannel}
}

func (s *Slack) post(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return errors.New("slack channel not configured")
	}
	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

// Notify posts the message summary to the info channel.
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	text := msg.Summary
	if text == "" {
		text = msg.Subject
	}
	return s.post(ctx, s.InfoChannel, text)
}

// Alert posts to the error channel.
func (s *Slack) Alert(ctx context.Context, text string) error {
	return s.post(ctx, s.ErrorChannel, text)
}
