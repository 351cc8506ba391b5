package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names:
//
//	run:<runID>        events of one run
//	workflow:<name>    events of every run of one workflow
//	runs               all run and step events
//	firehose           everything
const (
	TopicRuns     = "runs"
	TopicFirehose = "firehose"
)

// RunTopic returns the topic of a single run.
func RunTopic(runID string) string { return "run:" + runID }

// WorkflowTopic returns the topic of every run of a workflow.
func WorkflowTopic(name string) string { return "workflow:" + name }

// ValidateTopic reports whether topic names a known topic.
func ValidateTopic(topic string) error {
	if topic == TopicRuns || topic == TopicFirehose {
		return nil
	}
	kind, rest, ok := strings.Cut(topic, ":")
	if !ok || rest == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	if kind != "run" && kind != "workflow" {
		return fmt.Errorf("stream: unknown topic kind %q", kind)
	}
	return nil
}

// topicIndex maps topics to subscribers. Each subscriber's topic set is
// fixed when it joins, so leaving only needs the subscriber.
type topicIndex struct {
	mu     sync.RWMutex
	byName map[string][]*Subscriber
}

func newTopicIndex() *topicIndex {
	return &topicIndex{byName: make(map[string][]*Subscriber)}
}

func (ix *topicIndex) join(sub *Subscriber) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, topic := range sub.topics {
		ix.byName[topic] = append(ix.byName[topic], sub)
	}
}

func (ix *topicIndex) leave(sub *Subscriber) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, topic := range sub.topics {
		kept := ix.byName[topic][:0]
		for _, s := range ix.byName[topic] {
			if s != sub {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(ix.byName, topic)
			continue
		}
		ix.byName[topic] = kept
	}
}

// fanout delivers evt once per subscriber across topics and returns the
// number of deliveries.
func (ix *topicIndex) fanout(topics []string, evt *Event) int {
	ix.mu.RLock()
	var targets []*Subscriber
	seen := make(map[*Subscriber]bool)
	for _, topic := range topics {
		for _, s := range ix.byName[topic] {
			if !seen[s] {
				seen[s] = true
				targets = append(targets, s)
			}
		}
	}
	ix.mu.RUnlock()

	n := 0
	for _, s := range targets {
		if s.send(evt) {
			n++
		}
	}
	return n
}

func (ix *topicIndex) size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byName)
}
