package client

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/pkg/buffer"
)

// deferredItem is one queued write: the DeferredPutter memoizes the last
// value it actually sent for a path and skips a re-queued write that is
// byte-identical to it.
type deferredItem struct {
	path   tree.Path
	value  tree.Node
	create bool
}

// DeferredPutter coalesces a fast producer's Keymaster writes onto the
// slower client connection: Put enqueues onto a ring buffer instead of
// blocking on an RPC round trip, and a background goroutine drains the
// buffer, deduplicating consecutive writes to the same path by comparing
// their YAML-encoded bytes.
type DeferredPutter struct {
	client *Client
	buf    buffer.Buffer[deferredItem]
	period time.Duration

	mu          sync.Mutex
	lastWritten map[tree.Path][]byte

	quitOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewDeferredPutter creates a DeferredPutter backed by a capacity-sized
// ring buffer that drops the oldest queued write on overflow, and starts
// its drain goroutine.
func NewDeferredPutter(c *Client, capacity int, drainPeriod time.Duration) (*DeferredPutter, error) {
	buf, err := buffer.NewCircularBuffer[deferredItem](capacity, buffer.WithOverflowPolicy[deferredItem](buffer.DropOldest))
	if err != nil {
		return nil, matrixerrors.WrapInvalid(err, "client", "NewDeferredPutter", "buffer")
	}
	if drainPeriod <= 0 {
		drainPeriod = 20 * time.Millisecond
	}
	dp := &DeferredPutter{
		client:      c,
		buf:         buf,
		period:      drainPeriod,
		lastWritten: make(map[tree.Path][]byte),
		quit:        make(chan struct{}),
	}
	dp.wg.Add(1)
	go dp.drain()
	return dp, nil
}

// Put enqueues a write. It never blocks on the network; under sustained
// overflow the oldest unsent write for any path is dropped first.
func (dp *DeferredPutter) Put(path tree.Path, value tree.Node, create bool) error {
	return dp.buf.Write(deferredItem{path: path, value: value, create: create})
}

func (dp *DeferredPutter) drain() {
	defer dp.wg.Done()
	ticker := time.NewTicker(dp.period)
	defer ticker.Stop()
	for {
		select {
		case <-dp.quit:
			for !dp.buf.IsEmpty() {
				dp.flush()
			}
			return
		case <-ticker.C:
			dp.flush()
		}
	}
}

func (dp *DeferredPutter) flush() {
	for _, item := range dp.buf.ReadBatch(64) {
		encoded, err := wire.EncodeNode(item.value)
		if err != nil {
			continue
		}

		dp.mu.Lock()
		prev, seen := dp.lastWritten[item.path]
		dp.mu.Unlock()
		if seen && bytes.Equal(prev, encoded) {
			continue
		}

		if err := dp.client.Put(context.Background(), item.path, item.value, item.create); err != nil {
			continue
		}

		dp.mu.Lock()
		dp.lastWritten[item.path] = encoded
		dp.mu.Unlock()
	}
}

// Close stops the drain goroutine after flushing whatever is queued, and
// releases the ring buffer.
func (dp *DeferredPutter) Close() error {
	dp.quitOnce.Do(func() { close(dp.quit) })
	dp.wg.Wait()
	return dp.buf.Close()
}
