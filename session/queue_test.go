package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePreservesFIFOOrder(t *testing.T) {
	q := NewOutboundQueue()
	for i := 0; i < 5; i++ {
		q.Push(OutboundRequest{OriginatorID: fmt.Sprintf("p%d", i), Kind: "play"})
	}

	for i := 0; i < 5; i++ {
		req, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("p%d", i), req.OriginatorID)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueueTryPopEmpty(t *testing.T) {
	q := NewOutboundQueue()
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewOutboundQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(OutboundRequest{OriginatorID: "p1", Kind: "deal"})
	}()

	req, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", req.OriginatorID)
}

func TestQueuePopReturnsOnCancel(t *testing.T) {
	q := NewOutboundQueue()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := q.Pop(ctx)
	assert.Error(t, err)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewOutboundQueue()

	var wg sync.WaitGroup
	producers := 10
	perProducer := 50
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Push(OutboundRequest{OriginatorID: fmt.Sprintf("p%d", producer), Kind: "play"})
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for {
		_, ok := q.TryPop()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
