package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ledger/internal/domain/event"
	"ledger/internal/domain/ledger"
	"ledger/internal/infrastructure/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	ids    []string
	failOn map[string]error
}

func (p *recordingPublisher) Publish(ctx context.Context, e *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[e.ID]; err != nil {
		return err
	}
	p.ids = append(p.ids, e.ID)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func seed(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		for _, id := range ids {
			if err := tx.Enqueue(ctx, &event.Event{ID: id, Status: event.StatusPending, Type: event.TypeTransactionCreated}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestFlushPublishesInOrder(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "e1", "e2", "e3")

	pub := &recordingPublisher{}
	relay := NewRelay(store.Events(), pub, Config{BatchSize: 2}, zap.NewNop())

	batch, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if batch.Claimed != 2 || batch.Sent != 2 {
		t.Errorf("unexpected batch: %+v", batch)
	}

	relay.drain()
	got := pub.published()
	want := []string{"e1", "e2", "e3"}
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("published[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFlushStopsOnFailure(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "e1", "e2", "e3")

	pub := &recordingPublisher{failOn: map[string]error{"e2": errors.New("broker unavailable")}}
	relay := NewRelay(store.Events(), pub, Config{BatchSize: 10, MaxAttempts: 5}, zap.NewNop())

	relay.drain()
	if got := pub.published(); len(got) != 1 || got[0] != "e1" {
		t.Errorf("published %v, want only e1", got)
	}

	counts, _ := store.Events().CountByStatus(context.Background())
	if counts[event.StatusPending] != 2 || counts[event.StatusSent] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestRelayWake(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	relay := NewRelay(store.Events(), pub, Config{Interval: time.Hour}, zap.NewNop())
	relay.Start()
	defer relay.Shutdown(time.Second)

	seed(t, store, "e1")
	relay.Wake()
	relay.Wake() // coalesced

	deadline := time.After(2 * time.Second)
	for len(pub.published()) == 0 {
		select {
		case <-deadline:
			t.Fatal("relay did not flush after wake")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pub := NewLogPublisher(zap.New(core))

	err := pub.Publish(context.Background(), &event.Event{ID: "e1", Type: event.TypeBillPaid, Key: "acc-1", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	entries := logs.FilterMessage("Ledger event").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["event_type"] != "bill.paid" {
		t.Errorf("unexpected fields: %v", entries[0].ContextMap())
	}
}
