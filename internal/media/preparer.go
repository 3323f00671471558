// Package media turns raw inbound messages into model-ready prompt input:
// classify, fetch, extract, and compose, with a hard rule that unprocessable
// input never reaches the generation step.
package media

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/internal/observer"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

// Prepared is the outcome of media preparation for one inbound message.
// When ShouldRunTurn is false the pipeline routes the message to human
// takeover instead of spending a generation call.
type Prepared struct {
	MessageType    string
	PromptFragment string
	ShouldRunTurn  bool
	SkipReason     string
}

// Preparer classifies inbound messages and prepares their prompt fragment.
type Preparer struct {
	fetcher         collab.MediaFetcher
	extractor       collab.Extractor
	maxFetchBytes   int64
	maxExtractChars int
}

// NewPreparer builds a media preparer with the configured size and char caps.
func NewPreparer(fetcher collab.MediaFetcher, extractor collab.Extractor, maxFetchBytes int64, maxExtractChars int) *Preparer {
	return &Preparer{
		fetcher:         fetcher,
		extractor:       extractor,
		maxFetchBytes:   maxFetchBytes,
		maxExtractChars: maxExtractChars,
	}
}

// Prepare classifies the message and builds its prompt fragment. Returns an
// error only for unexpected internal failures; expected skip conditions come
// back as ShouldRunTurn=false with a SkipReason.
func (p *Preparer) Prepare(ctx context.Context, msg *model.Message) (Prepared, error) {
	loggerCtx := logger.FromContext(ctx)
	msgType := classify(msg)

	callerText := strings.TrimSpace(msg.TextContent)

	switch msgType {
	case model.MessageTypeText:
		if callerText == "" {
			observer.IncMediaPreparation(msg.TenantID, msgType, "skipped")
			return Prepared{
				MessageType:   msgType,
				ShouldRunTurn: false,
				SkipReason:    "text message with empty content",
			}, nil
		}
		observer.IncMediaPreparation(msg.TenantID, msgType, "prepared")
		return Prepared{
			MessageType:    msgType,
			PromptFragment: callerText,
			ShouldRunTurn:  true,
		}, nil

	case model.MessageTypeDocument, model.MessageTypeImage, model.MessageTypeAudio:
		extracted, extractErr := p.fetchAndExtract(ctx, msg, msgType)
		if extractErr != nil {
			loggerCtx.Warn("Media fetch/extract failed",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msgType),
				zap.Error(extractErr))
			if callerText == "" {
				observer.IncMediaPreparation(msg.TenantID, msgType, "skipped")
				return Prepared{
					MessageType:   msgType,
					ShouldRunTurn: false,
					SkipReason:    fmt.Sprintf("%s processing failed with no accompanying text: %v", msgType, extractErr),
				}, nil
			}
			// Caller text still gives the model something to answer.
			observer.IncMediaPreparation(msg.TenantID, msgType, "degraded")
			return Prepared{
				MessageType:    msgType,
				PromptFragment: composeFragment(callerText, msgType, ""),
				ShouldRunTurn:  true,
			}, nil
		}

		observer.IncMediaPreparation(msg.TenantID, msgType, "prepared")
		return Prepared{
			MessageType:    msgType,
			PromptFragment: composeFragment(callerText, msgType, extracted),
			ShouldRunTurn:  true,
		}, nil

	default: // unknown
		if callerText == "" {
			observer.IncMediaPreparation(msg.TenantID, msgType, "skipped")
			return Prepared{
				MessageType:   msgType,
				ShouldRunTurn: false,
				SkipReason:    "unrecognized message type with no text content",
			}, nil
		}
		observer.IncMediaPreparation(msg.TenantID, msgType, "degraded")
		return Prepared{
			MessageType:    msgType,
			PromptFragment: callerText,
			ShouldRunTurn:  true,
		}, nil
	}
}

// fetchAndExtract pulls the referenced media and runs the per-kind extractor.
// Oversized payloads are rejected by the fetcher before extraction.
func (p *Preparer) fetchAndExtract(ctx context.Context, msg *model.Message, msgType string) (string, error) {
	if msg.MediaURL == "" {
		return "", fmt.Errorf("no media url on %s message", msgType)
	}

	fetched, err := p.fetcher.Fetch(ctx, msg.MediaURL, p.maxFetchBytes)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}

	mime := fetched.MimeType
	if mime == "" {
		mime = msg.MimeType
	}

	switch msgType {
	case model.MessageTypeDocument:
		text, err := p.extractor.ExtractDocument(ctx, fetched.Data, mime)
		if err != nil {
			return "", fmt.Errorf("document extraction failed: %w", err)
		}
		return truncateRunes(text, p.maxExtractChars), nil
	case model.MessageTypeImage:
		desc, err := p.extractor.ExtractImage(ctx, fetched.Data, mime)
		if err != nil {
			return "", fmt.Errorf("image extraction failed: %w", err)
		}
		return desc, nil
	case model.MessageTypeAudio:
		transcript, err := p.extractor.ExtractAudio(ctx, fetched.Data, mime)
		if err != nil {
			return "", fmt.Errorf("audio transcription failed: %w", err)
		}
		return transcript, nil
	}
	return "", fmt.Errorf("no extractor for message type %s", msgType)
}

// truncateRunes caps s at max runes, never splitting a multi-byte character.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// classify maps message_type/mime metadata onto the supported kinds.
func classify(msg *model.Message) string {
	switch msg.MessageType {
	case model.MessageTypeText, model.MessageTypeDocument, model.MessageTypeImage, model.MessageTypeAudio:
		return msg.MessageType
	}

	mime := strings.ToLower(msg.MimeType)
	switch {
	case mime == "" && msg.MediaURL == "":
		if strings.TrimSpace(msg.TextContent) != "" {
			return model.MessageTypeText
		}
		return model.MessageTypeUnknown
	case strings.HasPrefix(mime, "text/"):
		return model.MessageTypeText
	case strings.HasPrefix(mime, "image/"):
		return model.MessageTypeImage
	case strings.HasPrefix(mime, "audio/"), strings.HasPrefix(mime, "video/"):
		return model.MessageTypeAudio
	case strings.Contains(mime, "pdf"), strings.Contains(mime, "document"),
		strings.Contains(mime, "msword"), strings.Contains(mime, "spreadsheet"):
		return model.MessageTypeDocument
	}
	return model.MessageTypeUnknown
}

// composeFragment joins caller text, an attachment description, and the
// extracted content into one prompt fragment.
func composeFragment(callerText, msgType, extracted string) string {
	var b strings.Builder
	if callerText != "" {
		b.WriteString(callerText)
	}

	var label string
	switch msgType {
	case model.MessageTypeDocument:
		label = "The contact attached a document."
	case model.MessageTypeImage:
		label = "The contact attached an image."
	case model.MessageTypeAudio:
		label = "The contact sent a voice message."
	}

	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(label)

	if extracted != "" {
		switch msgType {
		case model.MessageTypeDocument:
			b.WriteString(" Extracted content:\n")
		case model.MessageTypeImage:
			b.WriteString(" Image description:\n")
		case model.MessageTypeAudio:
			b.WriteString(" Transcript:\n")
		}
		b.WriteString(extracted)
	} else {
		b.WriteString(" Its content could not be processed.")
	}

	return b.String()
}
