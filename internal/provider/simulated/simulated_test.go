package simulated

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shineum/artmarket-mailer/internal/email"
)

var msg = &email.Message{To: []email.Recipient{{Address: "a@example.com"}}}

func TestSend_AlwaysSucceeds(t *testing.T) {
	t.Parallel()

	p := New(Config{SuccessRate: 1, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Seed: 7})
	for i := 0; i < 20; i++ {
		id, err := p.Send(context.Background(), msg)
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if !strings.HasPrefix(id, "sim-") {
			t.Errorf("message id: got %q", id)
		}
	}
}

func TestSend_AlwaysFails(t *testing.T) {
	t.Parallel()

	p := New(Config{SuccessRate: -1, MinDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if _, err := p.Send(context.Background(), msg); !errors.Is(err, ErrSimulatedFailure) {
		t.Errorf("got %v, want ErrSimulatedFailure", err)
	}
}

func TestSend_SuccessRateRoughlyHolds(t *testing.T) {
	t.Parallel()

	p := New(Config{MinDelay: time.Microsecond, MaxDelay: time.Microsecond, Seed: 42})
	ok := 0
	for i := 0; i < 400; i++ {
		if _, err := p.Send(context.Background(), msg); err == nil {
			ok++
		}
	}
	if ok < 360 || ok == 400 {
		t.Errorf("successes: got %d of 400, expected roughly 95%%", ok)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	p := New(Config{SuccessRate: 1, MinDelay: time.Second, MaxDelay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Send(ctx, msg); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	if p.cfg.SuccessRate != DefaultSuccessRate {
		t.Errorf("SuccessRate: got %v", p.cfg.SuccessRate)
	}
	if p.cfg.MinDelay != DefaultMinDelay || p.cfg.MaxDelay != DefaultMaxDelay {
		t.Errorf("delays: got %v..%v", p.cfg.MinDelay, p.cfg.MaxDelay)
	}
	if p.Name() != "simulated" {
		t.Errorf("Name: got %q", p.Name())
	}
}
