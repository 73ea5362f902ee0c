// Package eventbus implements the named-topic synchronous publish/subscribe
// mechanism the Session Core uses to notify host applications of state
// transitions (spec §4.7). Handlers run synchronously on the emitting
// goroutine, in subscription order, isolated from each other by recover so
// a panicking handler cannot take down the caller or block its siblings.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic names the well-known events the Session Core emits. Names follow
// the runtime's `<noun>:<verb>` wire convention so host applications can
// match on string prefixes as well as exact topics.
type Topic string

const (
	TopicActivationStart Topic = "activation:start"
	TopicActivationOK    Topic = "activation:success"
	TopicActivationError Topic = "activation:error"

	TopicValidationStart          Topic = "validation:start"
	TopicValidationOK             Topic = "validation:success"
	TopicValidationFailed         Topic = "validation:failed"
	TopicValidationError          Topic = "validation:error"
	TopicValidationAutoFailed     Topic = "validation:auto-failed"
	TopicValidationAuthFailed     Topic = "validation:auth-failed"
	TopicValidationOfflineSuccess Topic = "validation:offline-success"
	TopicValidationOfflineFailed  Topic = "validation:offline-failed"

	TopicDeactivationStart Topic = "deactivation:start"
	TopicDeactivationOK    Topic = "deactivation:success"
	TopicDeactivationError Topic = "deactivation:error"

	TopicHeartbeatOK    Topic = "heartbeat:success"
	TopicHeartbeatError Topic = "heartbeat:error"

	TopicAutoValidationCycle   Topic = "auto-validation:cycle"
	TopicAutoValidationStopped Topic = "auto-validation:stopped"

	TopicLicenseLoaded Topic = "license:loaded"

	TopicOfflineLicenseFetching Topic = "offline-license:fetching"
	TopicOfflineLicenseFetched  Topic = "offline-license:fetched"
	TopicOfflineLicenseFetchErr Topic = "offline-license:fetch-error"
	TopicOfflineLicenseReady    Topic = "offline-license:ready"

	TopicNetworkOnline  Topic = "network:online"
	TopicNetworkOffline Topic = "network:offline"

	TopicAuthTestStart Topic = "auth-test:start"
	TopicAuthTestOK    Topic = "auth-test:success"
	TopicAuthTestError Topic = "auth-test:error"

	TopicSDKReset     Topic = "sdk:reset"
	TopicSDKDestroyed Topic = "sdk:destroyed"
)

// Handler receives the payload emitted for a topic. Payload shape is
// topic-specific (e.g. *licensemodel.ValidationResult, error); callers
// type-assert.
type Handler func(payload any)

// Bus is a thread-safe, synchronous, named-topic event dispatcher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]subscriber
	onPanic     func(topic Topic, r any)
}

type subscriber struct {
	id string
	fn Handler
}

// Subscription is returned by On and can be passed to Off to unsubscribe.
// Its id is a UUID rather than a sequence number so handles remain unique
// across Bus instances (e.g. if a host application ever logs or compares
// them across a reset).
type Subscription struct {
	topic Topic
	id    string
}

// New creates an empty Bus. onPanic, if non-nil, is invoked (off the
// critical path) whenever a handler panics, so recovery can be logged.
func New(onPanic func(topic Topic, r any)) *Bus {
	return &Bus{
		subscribers: make(map[Topic][]subscriber),
		onPanic:     onPanic,
	}
}

// On registers fn to be called whenever topic is emitted.
func (b *Bus) On(topic Topic, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[topic] = append(b.subscribers[topic], subscriber{id: id, fn: fn})
	return Subscription{topic: topic, id: id}
}

// Off removes a previously registered subscription. Removing an already
// removed (or never valid) subscription is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Clear removes every subscriber for topic.
func (b *Bus) Clear(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, topic)
}

// ClearAll removes every subscriber for every topic.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make(map[Topic][]subscriber)
}

// SubscriberCount reports how many handlers are currently registered for
// topic, mainly useful in tests.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[topic])
}

// Emit synchronously invokes every handler registered for topic, in
// subscription order, with the given payload. A handler that panics is
// recovered and reported via onPanic; it does not prevent later handlers
// from running and does not propagate to the caller.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(topic, s.fn, payload)
	}
}

func (b *Bus) invoke(topic Topic, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if b.onPanic != nil {
				b.onPanic(topic, r)
			}
		}
	}()
	fn(payload)
}

// String renders a Topic for logging.
func (t Topic) String() string {
	return fmt.Sprintf("event:%s", string(t))
}
