// Package collab declares the contracts for external collaborators the
// pipeline calls out to: reply generation, retrieval context assembly,
// channel delivery, and media handling. Implementations live outside this
// service and are injected at wiring time.
package collab

import (
	"context"

	"github.com/aiworkforme/outreach-engine/internal/model"
)

// HistoryMessage is one prior turn supplied to the generator.
type HistoryMessage struct {
	Role string // "user" or "assistant"
	Text string
}

// GenerateRequest carries everything the generator needs for one turn.
type GenerateRequest struct {
	TenantID    string
	WorkspaceID string
	LeadID      string
	ThreadID    string
	// Prompt is the composed input for this turn: caller text plus any
	// prepared media fragment. Empty for proactive follow-up turns.
	Prompt string
	// Context is the retrieval context assembled for the lead.
	Context string
	// History is the prior conversation, oldest first.
	History []HistoryMessage
}

// GenerateResult is the generator's reply plus usage accounting.
type GenerateResult struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// Generator produces the outbound reply text for a turn.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// ContextAssembler builds the retrieval context for a lead before generation.
type ContextAssembler interface {
	BuildContext(ctx context.Context, lead *model.Lead, ws *model.Workspace, query string) (string, error)
}

// OutboundMessage is the channel-level view of a message to deliver.
type OutboundMessage struct {
	TenantID   string
	MessageID  string
	LeadID     string
	ExternalID string
	Channel    string
	Text       string
}

// ChannelSender delivers outbound messages on a channel. AckBased reports
// whether the channel confirms delivery asynchronously: ack-based sends land
// in accepted, fire-and-forget sends land directly in sent.
type ChannelSender interface {
	Send(ctx context.Context, msg OutboundMessage) (providerMessageID string, err error)
	AckBased() bool
}

// FetchedMedia is raw media content pulled from a channel URL.
type FetchedMedia struct {
	Data     []byte
	MimeType string
}

// MediaFetcher downloads media referenced by an inbound message. Fetch must
// refuse payloads larger than maxBytes.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) (*FetchedMedia, error)
}

// Extractor turns fetched media into model input.
type Extractor interface {
	// ExtractDocument returns plain text from a document.
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error)
	// ExtractImage returns a textual description of an image.
	ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error)
	// ExtractAudio returns a transcript.
	ExtractAudio(ctx context.Context, data []byte, mimeType string) (string, error)
}
