// Package simulated provides a stand-in transport that succeeds or fails at
// random after a random delay. It never delivers anything and exists for
// tests and local demos.
package simulated

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/artmarket-mailer/internal/email"
)

// ErrSimulatedFailure is returned for the unlucky fraction of sends.
var ErrSimulatedFailure = errors.New("simulated transport failure")

// Defaults mirror the storefront's stand-in transport.
const (
	DefaultSuccessRate = 0.95
	DefaultMinDelay    = 100 * time.Millisecond
	DefaultMaxDelay    = 600 * time.Millisecond
)

// Config tunes the simulated transport.
type Config struct {
	SuccessRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Seed        int64 // 0 seeds from the clock
}

// Provider is the simulated transport.
type Provider struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a simulated Provider. Zero fields take defaults; a negative
// SuccessRate means every send fails.
func New(cfg Config) *Provider {
	if cfg.SuccessRate == 0 {
		cfg.SuccessRate = DefaultSuccessRate
	}
	if cfg.MinDelay == 0 && cfg.MaxDelay == 0 {
		cfg.MinDelay, cfg.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Provider{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Send waits a random delay and then succeeds with probability
// SuccessRate.
func (p *Provider) Send(ctx context.Context, _ *email.Message) (string, error) {
	p.mu.Lock()
	delay := p.cfg.MinDelay
	if span := p.cfg.MaxDelay - p.cfg.MinDelay; span > 0 {
		delay += time.Duration(p.rng.Int63n(int64(span)))
	}
	ok := p.rng.Float64() < p.cfg.SuccessRate
	p.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if !ok {
		return "", ErrSimulatedFailure
	}
	return "sim-" + uuid.NewString(), nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "simulated"
}
