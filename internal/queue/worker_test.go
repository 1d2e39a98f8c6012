package queue

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekGameID(t *testing.T) {
	assert.Equal(t, "abc-123", peekGameID([]byte(`{"game_id":"abc-123","language":"CPP"}`)))
	assert.Equal(t, "", peekGameID([]byte(`not json`)))
	assert.Equal(t, "", peekGameID([]byte(`{}`)))
}

func TestFanIn_MergesBothChannelsAndClosesWhenBothDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan amqp.Delivery, 2)
	b := make(chan amqp.Delivery, 2)
	a <- amqp.Delivery{Body: []byte("a1")}
	b <- amqp.Delivery{Body: []byte("b1")}
	close(a)
	close(b)

	out := fanIn(ctx, 4, a, b)

	seen := map[string]bool{}
	for d := range out {
		seen[string(d.Body)] = true
	}
	assert.True(t, seen["a1"])
	assert.True(t, seen["b1"])
}

func TestFanIn_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a := make(chan amqp.Delivery)
	b := make(chan amqp.Delivery)
	out := fanIn(ctx, 1, a, b)

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("fanIn did not close output channel after context cancellation")
	}
}

func TestFanIn_NoInputsClosesImmediately(t *testing.T) {
	ctx := context.Background()
	out := fanIn(ctx, 1)
	_, ok := <-out
	require.False(t, ok)
}
