package conversation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const transcriptTopic = "assistant.transcript.save"

// TranscriptSink persists the transcript of one conversation.
type TranscriptSink interface {
	SaveTranscript(ctx context.Context, userID string) error
}

// TranscriptDispatcher queues transcript saves on an in-process channel and
// performs them in the background. Failures are logged and never retried.
type TranscriptDispatcher struct {
	pubSub  *gochannel.GoChannel
	sink    TranscriptSink
	logger  Logger
	timeout time.Duration
	done    chan struct{}
	started atomic.Bool
	// saves queued but not yet handed to the sink
	pending atomic.Int64
}

func NewTranscriptDispatcher(sink TranscriptSink, logger Logger) *TranscriptDispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NopLogger{},
	)
	return &TranscriptDispatcher{
		pubSub:  pubSub,
		sink:    sink,
		logger:  logger,
		timeout: 15 * time.Second,
		done:    make(chan struct{}),
	}
}

// Start subscribes the background consumer. Requests published before Start
// are dropped. The consumer lives until Close, not until ctx is done, so the
// saves requested while the caller shuts down still go out.
func (d *TranscriptDispatcher) Start(ctx context.Context) error {
	messages, err := d.pubSub.Subscribe(context.WithoutCancel(ctx), transcriptTopic)
	if err != nil {
		return err
	}
	d.started.Store(true)

	go func() {
		defer close(d.done)
		for msg := range messages {
			d.process(ctx, msg)
		}
	}()
	return nil
}

func (d *TranscriptDispatcher) process(ctx context.Context, msg *message.Message) {
	defer d.pending.Add(-1)
	// acked up front: a failed save is not retried
	msg.Ack()

	userID := string(msg.Payload)
	if userID == "" {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.sink.SaveTranscript(saveCtx, userID); err != nil {
		d.logger.Error("Transcript", "Failed to save transcript", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// SaveTranscript implements TranscriptSaver. It never blocks on the network.
func (d *TranscriptDispatcher) SaveTranscript(userID string) {
	if userID == "" {
		return
	}
	if !d.started.Load() {
		d.logger.Warn("Transcript", "Dispatcher not started, transcript save dropped", map[string]interface{}{
			"user_id": userID,
		})
		return
	}
	d.pending.Add(1)
	msg := message.NewMessage(watermill.NewUUID(), []byte(userID))
	if err := d.pubSub.Publish(transcriptTopic, msg); err != nil {
		d.pending.Add(-1)
		d.logger.Warn("Transcript", "Failed to queue transcript save", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// Close waits for queued saves to reach the sink, then stops the consumer.
// Each wait is bounded by the save timeout.
func (d *TranscriptDispatcher) Close() error {
	if !d.started.Load() {
		return d.pubSub.Close()
	}

	deadline := time.Now().Add(d.timeout)
	for d.pending.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	err := d.pubSub.Close()
	select {
	case <-d.done:
	case <-time.After(d.timeout):
	}
	return err
}
