package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_Lifecycle(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New("test", 3, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		b.Record(boom)
		if !b.Allow() {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}

	b.Record(boom)
	if b.State() != Open {
		t.Fatalf("state = %v; want open", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker allowed a call before cooldown")
	}

	now = now.Add(time.Minute)
	if !b.Allow() {
		t.Fatal("breaker did not allow a probe after cooldown")
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v; want half-open", b.State())
	}

	// Failed probe reopens.
	b.Record(boom)
	if b.State() != Open {
		t.Fatalf("state = %v; want open after failed probe", b.State())
	}

	now = now.Add(time.Minute)
	b.Allow()
	b.Record(nil)
	if b.State() != Closed {
		t.Fatalf("state = %v; want closed after successful probe", b.State())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New("test", 2, time.Minute)
	boom := errors.New("boom")

	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	if b.State() != Closed {
		t.Fatalf("non-consecutive failures opened the breaker")
	}
}

func TestState_String(t *testing.T) {
	if Closed.String() != "closed" || Open.String() != "open" || HalfOpen.String() != "half-open" {
		t.Fatal("unexpected state names")
	}
}
