package meta_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nyxmeta/internal/meta"
)

func TestMemoryQueueDrainOrderAndLimit(t *testing.T) {
	q := meta.NewMemoryQueue()
	require.NoError(t, q.Enqueue(1, meta.Instruction("a"), meta.Instruction("b"), meta.Instruction("c")))
	require.NoError(t, q.Enqueue(2, meta.Instruction("x")))

	got, err := q.Drain(1, 2)
	require.NoError(t, err)
	require.Equal(t, []meta.Instruction{meta.Instruction("a"), meta.Instruction("b")}, got)

	pending, _ := q.Pending(1)
	require.Equal(t, 1, pending)
	got, _ = q.Drain(1, 0)
	require.Equal(t, []meta.Instruction{meta.Instruction("c")}, got)
	got, _ = q.Drain(1, 0)
	require.Empty(t, got)

	pending, _ = q.Pending(2)
	require.Equal(t, 1, pending)
}

func TestMemoryQueueCopiesPayloads(t *testing.T) {
	q := meta.NewMemoryQueue()
	payload := meta.Instruction("split")
	require.NoError(t, q.Enqueue(1, payload))
	payload[0] = 'S'

	got, _ := q.Drain(1, 0)
	require.Equal(t, "split", string(got[0]))
}

func TestMemoryQueueConcurrentDrainDeliversOnce(t *testing.T) {
	q := meta.NewMemoryQueue()
	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(9, meta.Instruction{byte(i % 256)}))
	}

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, _ := q.Drain(9, 7)
				if len(got) == 0 {
					return
				}
				mu.Lock()
				total += len(got)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, n, total)
}

type failingQueue struct{ meta.InstructionQueue }

func (failingQueue) Drain(uint64, int) ([]meta.Instruction, error) {
	return nil, errors.New("mailbox unavailable")
}

func TestDispatcherSwallowsQueueErrors(t *testing.T) {
	d := meta.NewResponseDispatcher(failingQueue{}, 0, zaptest.NewLogger(t))
	require.Nil(t, d.Drain(peer(1)))

	var empty *meta.ResponseDispatcher
	require.Nil(t, empty.Drain(peer(1)))
	require.Nil(t, meta.NewResponseDispatcher(nil, 0, nil).Drain(peer(1)))
}

func TestDispatcherHonoursPerAckCap(t *testing.T) {
	q := meta.NewMemoryQueue()
	d := meta.NewResponseDispatcher(q, 2, nil)
	require.NoError(t, q.Enqueue(1, meta.Instruction("1"), meta.Instruction("2"), meta.Instruction("3")))

	require.Len(t, d.Drain(peer(1)), 2)
	require.Len(t, d.Drain(peer(1)), 1)
	require.Empty(t, d.Drain(peer(1)))
}
