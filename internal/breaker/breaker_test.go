package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(failures int, reset time.Duration) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", failures, reset)
	b.now = c.now
	return b, c
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	if b.State() != StateClosed {
		t.Errorf("expected Closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("expected rejection without call, got err=%v called=%v", err, called)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, c := newTestBreaker(2, time.Second)
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errFail })
	}

	c.advance(time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(2, time.Second)
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errFail })
	}

	c.advance(time.Second)
	_ = b.Execute(func() error { return errFail })
	if b.State() != StateOpen {
		t.Fatalf("expected Open after failed probe, got %v", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen right after reopening, got %v", err)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	_ = b.Execute(func() error { return errFail })
	_ = b.Execute(func() error { return errFail })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errFail })
	_ = b.Execute(func() error { return errFail })
	if b.State() != StateClosed {
		t.Errorf("expected Closed, got %v", b.State())
	}
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	b, _ := newTestBreaker(1, time.Second)
	_ = b.Execute(func() error { return context.Canceled })
	if b.State() != StateClosed {
		t.Errorf("cancellation tripped the breaker: %v", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	b, c := newTestBreaker(1, time.Second)
	var got []string
	b.OnStateChange = func(name string, from, to State) {
		got = append(got, name+":"+from.String()+"->"+to.String())
	}

	_ = b.Execute(func() error { return errFail })
	c.advance(2 * time.Second)
	_ = b.Execute(func() error { return nil })

	want := []string{"test:closed->open", "test:open->half-open", "test:half-open->closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestBreaker_IsFailureFiltersErrors(t *testing.T) {
	errClient := errors.New("not found")
	b, _ := newTestBreaker(2, time.Minute)
	b.IsFailure = func(err error) bool { return !errors.Is(err, errClient) }

	for i := 0; i < 5; i++ {
		b.Execute(func() error { return errClient })
	}
	if b.State() != StateClosed {
		t.Fatalf("filtered errors opened the breaker: %v", b.State())
	}
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })
	if b.State() != StateOpen {
		t.Errorf("expected Open after 2 counted failures, got %v", b.State())
	}
}
