package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversToTopic(t *testing.T) {
	bus := NewLocalBus()
	alice := bus.Subscribe("alice")
	bob := bus.Subscribe("bob")
	defer alice.Close()
	defer bob.Close()

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: "alice", Kind: KindCartChanged}))

	select {
	case evt := <-alice.Events():
		assert.Equal(t, KindCartChanged, evt.Kind)
		assert.False(t, evt.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event for alice")
	}
	select {
	case evt := <-bob.Events():
		t.Fatalf("unexpected event for bob: %+v", evt)
	default:
	}
}

func TestLocalBusWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewLocalBus()
	assert.NoError(t, bus.Publish(context.Background(), Event{Topic: "nobody", Kind: KindCartChanged}))
}

func TestLocalBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewLocalBus()
	sub := bus.Subscribe("t")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = bus.Publish(context.Background(), Event{Topic: "t", Kind: KindCartChanged})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	assert.Len(t, sub.Events(), subscriberBuffer)
}

func TestSubscriptionCloseUnregisters(t *testing.T) {
	bus := NewLocalBus()
	sub := bus.Subscribe("t")
	require.Equal(t, 1, bus.Subscribers("t"))
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers("t"))
	_, open := <-sub.Events()
	assert.False(t, open)
}

type fakeRedis struct {
	published map[string][]byte
	err       error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.published[channel] = message.([]byte)
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) PSubscribe(context.Context, ...string) *redis.PubSub { return nil }

func TestRedisBusPublishesJSON(t *testing.T) {
	client := &fakeRedis{published: map[string][]byte{}}
	bus := NewRedisBus(client, nil)

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: "u1", Kind: KindAuthChanged}))
	raw, ok := client.published["storefront:events:u1"]
	require.True(t, ok)
	var evt Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, KindAuthChanged, evt.Kind)
}

func TestRedisBusFallsBackLocally(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	bus := NewRedisBus(client, nil)
	sub := bus.Subscribe("u1")
	defer sub.Close()

	err := bus.Publish(context.Background(), Event{Topic: "u1", Kind: KindCartChanged})
	require.Error(t, err)
	select {
	case evt := <-sub.Events():
		assert.Equal(t, KindCartChanged, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected local delivery")
	}
}

func TestRedisBusRelay(t *testing.T) {
	bus := NewRedisBus(&fakeRedis{published: map[string][]byte{}}, nil)
	sub := bus.Subscribe("u2")
	defer sub.Close()

	messages := make(chan *redis.Message, 2)
	messages <- &redis.Message{Channel: "storefront:events:u2", Payload: "not json"}
	messages <- &redis.Message{Channel: "storefront:events:u2", Payload: `{"kind":"cart.changed"}`}
	close(messages)

	bus.relay(context.Background(), messages)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "u2", evt.Topic)
		assert.Equal(t, KindCartChanged, evt.Kind)
	default:
		t.Fatal("expected relayed event")
	}
}
