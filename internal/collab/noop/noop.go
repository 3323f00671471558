// Package noop provides stand-in collaborators for development profiles.
// They satisfy the collab contracts without reaching any external service:
// generation returns a canned reply, sends log and succeed, media handling
// reports itself unconfigured so inbound media routes to human takeover.
package noop

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

// ErrNotConfigured marks a collaborator with no real adapter registered.
var ErrNotConfigured = errors.New("collaborator not configured")

// Generator returns a fixed reply.
type Generator struct{}

func (Generator) Generate(_ context.Context, _ collab.GenerateRequest) (*collab.GenerateResult, error) {
	return &collab.GenerateResult{
		Text:     "Thanks for reaching out! A member of our team will follow up shortly.",
		Provider: "noop",
		Model:    "noop",
	}, nil
}

// ContextAssembler returns an empty retrieval context.
type ContextAssembler struct{}

func (ContextAssembler) BuildContext(_ context.Context, _ *model.Lead, _ *model.Workspace, _ string) (string, error) {
	return "", nil
}

// ChannelSender logs the outbound message and reports success.
type ChannelSender struct{}

func (ChannelSender) Send(ctx context.Context, msg collab.OutboundMessage) (string, error) {
	logger.FromContext(ctx).Info("noop send",
		zap.String("message_id", msg.MessageID),
		zap.String("channel", msg.Channel),
		zap.String("external_id", msg.ExternalID))
	return "noop-" + uuid.NewString(), nil
}

func (ChannelSender) AckBased() bool { return false }

// MediaFetcher refuses every fetch.
type MediaFetcher struct{}

func (MediaFetcher) Fetch(_ context.Context, _ string, _ int64) (*collab.FetchedMedia, error) {
	return nil, ErrNotConfigured
}

// Extractor refuses every extraction.
type Extractor struct{}

func (Extractor) ExtractDocument(_ context.Context, _ []byte, _ string) (string, error) {
	return "", ErrNotConfigured
}

func (Extractor) ExtractImage(_ context.Context, _ []byte, _ string) (string, error) {
	return "", ErrNotConfigured
}

func (Extractor) ExtractAudio(_ context.Context, _ []byte, _ string) (string, error) {
	return "", ErrNotConfigured
}
