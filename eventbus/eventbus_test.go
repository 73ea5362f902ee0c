package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitInvokesSubscribersInOrder(t *testing.T) {
	bus := New(nil)
	var order []int

	bus.On(TopicActivationStart, func(payload any) { order = append(order, 1) })
	bus.On(TopicActivationStart, func(payload any) { order = append(order, 2) })
	bus.On(TopicActivationStart, func(payload any) { order = append(order, 3) })

	bus.Emit(TopicActivationStart, nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitIsolatesTopics(t *testing.T) {
	bus := New(nil)
	var activatedCount, deactivatedCount int

	bus.On(TopicActivationStart, func(payload any) { activatedCount++ })
	bus.On(TopicDeactivationStart, func(payload any) { deactivatedCount++ })

	bus.Emit(TopicActivationStart, nil)

	assert.Equal(t, 1, activatedCount)
	assert.Equal(t, 0, deactivatedCount)
}

func TestOffRemovesSubscriber(t *testing.T) {
	bus := New(nil)
	called := false

	sub := bus.On(TopicValidationOK, func(payload any) { called = true })
	bus.Off(sub)
	bus.Emit(TopicValidationOK, nil)

	assert.False(t, called)
}

func TestPayloadDeliveredToHandler(t *testing.T) {
	bus := New(nil)
	var got any

	bus.On(TopicValidationError, func(payload any) { got = payload })
	bus.Emit(TopicValidationError, "boom")

	assert.Equal(t, "boom", got)
}

func TestPanicInHandlerDoesNotStopOthers(t *testing.T) {
	bus := New(func(topic Topic, r any) {})
	secondRan := false

	bus.On(TopicHeartbeatOK, func(payload any) { panic("handler exploded") })
	bus.On(TopicHeartbeatOK, func(payload any) { secondRan = true })

	require.NotPanics(t, func() {
		bus.Emit(TopicHeartbeatOK, nil)
	})
	assert.True(t, secondRan)
}

func TestOnPanicCallbackReceivesRecoveredValue(t *testing.T) {
	var recovered any
	bus := New(func(topic Topic, r any) { recovered = r })

	bus.On(TopicOfflineLicenseFetching, func(payload any) { panic("oops") })
	bus.Emit(TopicOfflineLicenseFetching, nil)

	assert.Equal(t, "oops", recovered)
}

func TestClearAndClearAll(t *testing.T) {
	bus := New(nil)
	bus.On(TopicActivationStart, func(payload any) {})
	bus.On(TopicDeactivationStart, func(payload any) {})

	bus.Clear(TopicActivationStart)
	assert.Equal(t, 0, bus.SubscriberCount(TopicActivationStart))
	assert.Equal(t, 1, bus.SubscriberCount(TopicDeactivationStart))

	bus.ClearAll()
	assert.Equal(t, 0, bus.SubscriberCount(TopicDeactivationStart))
}

func TestConcurrentEmitAndSubscribeIsSafe(t *testing.T) {
	bus := New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.On(TopicAuthTestStart, func(payload any) {})
		}()
		go func() {
			defer wg.Done()
			bus.Emit(TopicAuthTestStart, nil)
		}()
	}
	wg.Wait()
}
