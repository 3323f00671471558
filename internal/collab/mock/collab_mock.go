package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aiworkforme/outreach-engine/internal/collab"
	"github.com/aiworkforme/outreach-engine/internal/model"
)

// GeneratorMock mocks the collab.Generator interface
type GeneratorMock struct {
	mock.Mock
}

// Generate mocks the Generate method
func (m *GeneratorMock) Generate(ctx context.Context, req collab.GenerateRequest) (*collab.GenerateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collab.GenerateResult), args.Error(1)
}

// ContextAssemblerMock mocks the collab.ContextAssembler interface
type ContextAssemblerMock struct {
	mock.Mock
}

// BuildContext mocks the BuildContext method
func (m *ContextAssemblerMock) BuildContext(ctx context.Context, lead *model.Lead, ws *model.Workspace, query string) (string, error) {
	args := m.Called(ctx, lead, ws, query)
	return args.String(0), args.Error(1)
}

// ChannelSenderMock mocks the collab.ChannelSender interface
type ChannelSenderMock struct {
	mock.Mock
}

// Send mocks the Send method
func (m *ChannelSenderMock) Send(ctx context.Context, msg collab.OutboundMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// AckBased mocks the AckBased method
func (m *ChannelSenderMock) AckBased() bool {
	args := m.Called()
	return args.Bool(0)
}

// MediaFetcherMock mocks the collab.MediaFetcher interface
type MediaFetcherMock struct {
	mock.Mock
}

// Fetch mocks the Fetch method
func (m *MediaFetcherMock) Fetch(ctx context.Context, url string, maxBytes int64) (*collab.FetchedMedia, error) {
	args := m.Called(ctx, url, maxBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collab.FetchedMedia), args.Error(1)
}

// ExtractorMock mocks the collab.Extractor interface
type ExtractorMock struct {
	mock.Mock
}

// ExtractDocument mocks the ExtractDocument method
func (m *ExtractorMock) ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	args := m.Called(ctx, data, mimeType)
	return args.String(0), args.Error(1)
}

// ExtractImage mocks the ExtractImage method
func (m *ExtractorMock) ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	args := m.Called(ctx, data, mimeType)
	return args.String(0), args.Error(1)
}

// ExtractAudio mocks the ExtractAudio method
func (m *ExtractorMock) ExtractAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	args := m.Called(ctx, data, mimeType)
	return args.String(0), args.Error(1)
}
