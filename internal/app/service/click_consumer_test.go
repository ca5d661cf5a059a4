package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beaconbio/beacon/internal/app/model"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeLiveCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeLiveCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeLiveCounter) count(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

type fakeCountReader struct {
	keys   []string
	values []interface{}
	err    error
	called bool
}

func (f *fakeCountReader) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	f.called = true
	f.keys = keys
	cmd := redis.NewSliceCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(f.values)
	return cmd
}

// fakePullSubscription serves queued payloads once, then times out.
type fakePullSubscription struct {
	mu      sync.Mutex
	pending [][]byte
}

func (f *fakePullSubscription) Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nats.ErrTimeout
	}

	n := batch
	if n > len(f.pending) {
		n = len(f.pending)
	}
	msgs := make([]*nats.Msg, 0, n)
	for _, data := range f.pending[:n] {
		msgs = append(msgs, &nats.Msg{Data: data})
	}
	f.pending = f.pending[n:]
	return msgs, nil
}

func clickPayload(t *testing.T, event model.ClickEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func TestClickConsumer_TrackedEventIncrements(t *testing.T) {
	counter := &fakeLiveCounter{}
	c := NewClickConsumer(nil, counter, zap.NewNop())

	event := model.ClickEvent{ID: "evt-1", LinkID: "link-1", ClickedAt: time.Now()}
	for i := 0; i < 2; i++ {
		if err := c.process(context.Background(), clickPayload(t, event)); err != nil {
			t.Fatalf("process error: %v", err)
		}
	}
	if got := counter.count(LiveCountKey("link-1")); got != 2 {
		t.Fatalf("counter = %d, want 2", got)
	}
}

func TestClickConsumer_BotEventNotCounted(t *testing.T) {
	counter := &fakeLiveCounter{}
	c := NewClickConsumer(nil, counter, zap.NewNop())

	event := model.ClickEvent{ID: "evt-1", LinkID: "link-1", IsBot: true}
	if err := c.process(context.Background(), clickPayload(t, event)); err != nil {
		t.Fatalf("process error: %v", err)
	}
	if got := counter.count(LiveCountKey("link-1")); got != 0 {
		t.Fatalf("counter = %d, want 0 for a bot click", got)
	}
}

func TestClickConsumer_MalformedEventRejected(t *testing.T) {
	counter := &fakeLiveCounter{}
	c := NewClickConsumer(nil, counter, zap.NewNop())

	if err := c.process(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(counter.counts) != 0 {
		t.Fatal("no counter may change for a malformed payload")
	}
}

func TestClickConsumer_CounterFailureSurfaces(t *testing.T) {
	counter := &fakeLiveCounter{err: errors.New("connection refused")}
	c := NewClickConsumer(nil, counter, zap.NewNop())

	event := model.ClickEvent{ID: "evt-1", LinkID: "link-1"}
	if err := c.process(context.Background(), clickPayload(t, event)); err == nil {
		t.Fatal("expected error when the counter write fails")
	}
}

func TestClickConsumer_ConsumeDrainsAndStops(t *testing.T) {
	counter := &fakeLiveCounter{}
	c := NewClickConsumer(nil, counter, zap.NewNop())
	sub := &fakePullSubscription{pending: [][]byte{
		clickPayload(t, model.ClickEvent{ID: "evt-1", LinkID: "link-1"}),
		clickPayload(t, model.ClickEvent{ID: "evt-2", LinkID: "link-1", IsBot: true}),
		clickPayload(t, model.ClickEvent{ID: "evt-3", LinkID: "link-2"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.consume(ctx, sub)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for counter.count(LiveCountKey("link-1")) != 1 || counter.count(LiveCountKey("link-2")) != 1 {
		select {
		case <-deadline:
			t.Fatalf("counters = %d/%d, want 1/1",
				counter.count(LiveCountKey("link-1")), counter.count(LiveCountKey("link-2")))
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop after cancel")
	}
}

func TestLiveCounts_ZeroForMissingCounters(t *testing.T) {
	reader := &fakeCountReader{values: []interface{}{"3", nil}}

	counts, err := LiveCounts(context.Background(), reader, []string{"link-1", "link-2"})
	if err != nil {
		t.Fatalf("LiveCounts error: %v", err)
	}
	if counts["link-1"] != 3 || counts["link-2"] != 0 {
		t.Fatalf("counts = %+v, want link-1=3 link-2=0", counts)
	}
	if len(reader.keys) != 2 || reader.keys[0] != LiveCountKey("link-1") {
		t.Fatalf("queried keys = %v", reader.keys)
	}
}

func TestLiveCounts_NoLinksSkipsRedis(t *testing.T) {
	reader := &fakeCountReader{}

	counts, err := LiveCounts(context.Background(), reader, nil)
	if err != nil {
		t.Fatalf("LiveCounts error: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("counts = %+v, want empty", counts)
	}
	if reader.called {
		t.Fatal("Redis must not be queried for an empty link list")
	}
}

func TestLiveCounts_ErrorPropagates(t *testing.T) {
	reader := &fakeCountReader{err: errors.New("connection refused")}

	if _, err := LiveCounts(context.Background(), reader, []string{"link-1"}); err == nil {
		t.Fatal("expected error from failed read")
	}
}
