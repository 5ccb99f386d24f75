package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalbot/internal/model"
)

type recordSink struct {
	name  string
	err   error
	block chan struct{} // when set, Publish waits for it to close

	mu     sync.Mutex
	events []model.TradeEvent
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Publish(ctx context.Context, ev model.TradeEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return s.err
}

func (s *recordSink) Events() []model.TradeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TradeEvent(nil), s.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func event(kind model.EventKind) model.TradeEvent {
	return model.NewTradeEvent(model.Instrument{Pair: "btc_idr"}, kind, model.Buy, 100, time.Now())
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	a, b := &recordSink{name: "a"}, &recordSink{name: "b"}
	d := NewDispatcher(10, a, b)
	d.Start(context.Background())

	d.Dispatch(event(model.EventOpen))
	d.Dispatch(event(model.EventClose))
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, s := range []*recordSink{a, b} {
		got := s.Events()
		if len(got) != 2 || got[0].Kind != model.EventOpen || got[1].Kind != model.EventClose {
			t.Errorf("sink %s got %+v", s.name, got)
		}
	}
}

func TestDispatcher_DropsForFullSinkOnly(t *testing.T) {
	slow := &recordSink{name: "slow", block: make(chan struct{})}
	fast := &recordSink{name: "fast"}
	d := NewDispatcher(1, slow, fast)

	var mu sync.Mutex
	drops := map[string]int{}
	d.OnDrop = func(sink string) {
		mu.Lock()
		drops[sink]++
		mu.Unlock()
	}
	d.Start(context.Background())

	// The slow sink holds one event in Publish and one in its queue.
	d.Dispatch(event(model.EventOpen))
	waitFor(t, func() bool { return d.ChannelStats()[0].Len == 0 })
	d.Dispatch(event(model.EventOpen))
	d.Dispatch(event(model.EventOpen))

	waitFor(t, func() bool { return len(fast.Events()) == 3 })
	mu.Lock()
	if drops["slow"] != 1 || drops["fast"] != 0 {
		t.Errorf("drops = %v, want slow=1 fast=0", drops)
	}
	mu.Unlock()

	close(slow.block)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(slow.Events()); got != 2 {
		t.Errorf("slow sink got %d events, want 2", got)
	}
}

func TestDispatcher_ReportsErrors(t *testing.T) {
	s := &recordSink{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(4, s)
	var got []string
	var mu sync.Mutex
	d.OnError = func(sink string, err error) {
		mu.Lock()
		got = append(got, sink+": "+err.Error())
		mu.Unlock()
	}
	d.Start(context.Background())
	d.Dispatch(event(model.EventOpen))
	d.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "bad: boom" {
		t.Errorf("OnError calls = %v", got)
	}
}

func TestDispatcher_CloseDeadline(t *testing.T) {
	s := &recordSink{name: "stuck", block: make(chan struct{})}
	defer close(s.block)
	d := NewDispatcher(4, s)
	d.Start(context.Background())
	d.Dispatch(event(model.EventOpen))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close err = %v, want deadline exceeded", err)
	}
	// Dispatch after Close is ignored rather than panicking.
	d.Dispatch(event(model.EventOpen))
}
