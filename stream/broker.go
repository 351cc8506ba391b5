package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CavellTopDev/pitchey-app-sub015/ext"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

var (
	_ ext.Extension      = (*Broker)(nil)
	_ ext.RunStarted     = (*Broker)(nil)
	_ ext.RunSuspended   = (*Broker)(nil)
	_ ext.RunCompleted   = (*Broker)(nil)
	_ ext.RunFailed      = (*Broker)(nil)
	_ ext.RunCancelled   = (*Broker)(nil)
	_ ext.StepCompleted  = (*Broker)(nil)
	_ ext.StepFailed     = (*Broker)(nil)
	_ ext.SweepCompleted = (*Broker)(nil)
	_ ext.Shutdown       = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker fans lifecycle events out to subscribers by topic.
type Broker struct {
	topics *topicIndex
	logger *slog.Logger
	clock  clockwork.Clock

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithClock sets the clock that stamps events.
func WithClock(c clockwork.Clock) BrokerOption {
	return func(b *Broker) { b.clock = c }
}

// NewBroker creates a broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:     newTopicIndex(),
		logger:     logger,
		clock:      clockwork.NewRealClock(),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe registers a subscriber on topics. An existing subscriber
// with the same ID is replaced and closed.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	b.RemoveSubscriber(subscriberID)

	sub := newSubscriber(subscriberID, topics, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	b.topics.join(sub)
	return sub
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	val, ok := b.subscribers.LoadAndDelete(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	b.topics.leave(sub)
	sub.Close()
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.size(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish stamps an event for topic and broadcasts it to topic and the
// extra topics.
func (b *Broker) publish(typ EventType, topic string, extra []string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("stream: marshal event", slog.String("type", string(typ)), slog.String("error", err.Error()))
		return
	}
	evt := &Event{
		Type:      typ,
		Timestamp: b.clock.Now().UTC(),
		Topic:     topic,
		Data:      raw,
	}
	topics := append([]string{topic}, extra...)
	b.totalPublished.Add(int64(b.topics.fanout(topics, evt)))
}

func (b *Broker) publishRun(typ EventType, r *workflow.Run, fill func(*RunEventData)) {
	data := RunEventData{
		RunID:    r.ID.String(),
		Workflow: r.Name,
		State:    string(r.State),
		Status:   r.Status,
		Reason:   r.Reason,
	}
	if fill != nil {
		fill(&data)
	}
	b.publish(typ, RunTopic(data.RunID), []string{WorkflowTopic(r.Name), TopicRuns, TopicFirehose}, data)
}

func (b *Broker) OnRunStarted(_ context.Context, r *workflow.Run) error {
	b.publishRun(EventRunStarted, r, nil)
	return nil
}

func (b *Broker) OnRunSuspended(_ context.Context, r *workflow.Run, wait string) error {
	b.publishRun(EventRunSuspended, r, func(d *RunEventData) { d.Wait = wait })
	return nil
}

func (b *Broker) OnRunCompleted(_ context.Context, r *workflow.Run, elapsed time.Duration) error {
	b.publishRun(EventRunCompleted, r, func(d *RunEventData) { d.ElapsedMs = elapsed.Milliseconds() })
	return nil
}

func (b *Broker) OnRunFailed(_ context.Context, r *workflow.Run, runErr error) error {
	b.publishRun(EventRunFailed, r, func(d *RunEventData) { d.Error = runErr.Error() })
	return nil
}

func (b *Broker) OnRunCancelled(_ context.Context, r *workflow.Run) error {
	b.publishRun(EventRunCancelled, r, func(d *RunEventData) { d.Reason = r.CancelReason })
	return nil
}

func (b *Broker) OnStepCompleted(_ context.Context, r *workflow.Run, step string, elapsed time.Duration) error {
	b.publishRun(EventStepCompleted, r, func(d *RunEventData) {
		d.Step = step
		d.ElapsedMs = elapsed.Milliseconds()
	})
	return nil
}

func (b *Broker) OnStepFailed(_ context.Context, r *workflow.Run, step string, stepErr error) error {
	b.publishRun(EventStepFailed, r, func(d *RunEventData) {
		d.Step = step
		d.Error = stepErr.Error()
	})
	return nil
}

func (b *Broker) OnSweepCompleted(_ context.Context, driven int, elapsed time.Duration) error {
	if driven == 0 {
		return nil
	}
	b.publish(EventSweepCompleted, TopicFirehose, nil, SweepEventData{
		Driven:    driven,
		ElapsedMs: elapsed.Milliseconds(),
	})
	return nil
}

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, _ any) bool {
		b.RemoveSubscriber(key.(string)) //nolint:errcheck // keys are subscriber IDs
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
