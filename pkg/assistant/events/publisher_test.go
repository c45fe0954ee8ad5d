package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"assistant-proxy-be/internal/pkg/logger"
	pkgEvents "assistant-proxy-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []pkgEvents.Event
	err    error
}

func (r *recordingTransport) Publish(_ context.Context, event pkgEvents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestPublisherWithoutTransportIsNoop(t *testing.T) {
	p := NewNatsPublisher(nil, logger.NewNopLogger())
	assert.False(t, p.Enabled())

	assert.NotPanics(t, func() {
		p.PublishTurnCompleted(context.Background(), "u-1", nil, 1, 10)
		p.PublishTranscriptFailed(context.Background(), "u-1", 500)
	})

	var nilPublisher *NatsPublisher
	assert.False(t, nilPublisher.Enabled())
}

func TestPublisherBuildsEvents(t *testing.T) {
	transport := &recordingTransport{}
	p := NewNatsPublisher(transport, logger.NewNopLogger())
	require.True(t, p.Enabled())

	ctx := context.Background()
	p.PublishConversationLaunched(ctx, "u-1", 2)
	p.PublishTurnRejected(ctx, "u-1", "text", 429, false)
	p.PublishDocumentReferenced(ctx, "u-1", "doc-9")

	require.Len(t, transport.events, 3)
	assert.Equal(t, pkgEvents.TypeConversationLaunched, transport.events[0].EventType())
	assert.Equal(t, 2, transport.events[0].Payload()["step_count"])

	rejected := transport.events[1].Payload()
	assert.Equal(t, pkgEvents.TypeTurnRejected, transport.events[1].EventType())
	assert.Equal(t, 429, rejected["upstream_status"])
	assert.Equal(t, false, rejected["transport"])

	assert.Equal(t, "doc-9", transport.events[2].Payload()["document_id"])
	assert.False(t, transport.events[2].Timestamp().IsZero())
}

func TestPublisherSwallowsTransportErrors(t *testing.T) {
	transport := &recordingTransport{err: errors.New("nats down")}
	p := NewNatsPublisher(transport, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		p.PublishTranscriptSaved(context.Background(), "u-1")
	})
	assert.Len(t, transport.events, 1)
}
