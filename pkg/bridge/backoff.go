package bridge

import (
	"math/rand"
	"time"
)

// Redial backoff defaults. The peer is usually a locally restarted
// process, so delays stay short and cap low.
const (
	defaultBackoffInitial    = 1 * time.Second
	defaultBackoffMax        = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBackoffJitter     = 0.25
)

// BackoffConfig controls the delay between redial attempts.
type BackoffConfig struct {
	// Initial is the delay before the first redial.
	Initial time.Duration

	// Max caps the delay.
	Max time.Duration

	// Multiplier grows the delay per failed attempt.
	Multiplier float64

	// Jitter is the maximum random addition as a fraction of the base
	// delay. Zero disables jitter.
	Jitter float64
}

// DefaultBackoffConfig returns the default redial backoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    defaultBackoffInitial,
		Max:        defaultBackoffMax,
		Multiplier: defaultBackoffMultiplier,
		Jitter:     defaultBackoffJitter,
	}
}

// backoff derives each redial delay from the attempt count. It is
// driven only by the bridge's Run loop, so it needs no locking.
type backoff struct {
	cfg     BackoffConfig
	attempt int
	rng     *rand.Rand
}

func newBackoff(cfg BackoffConfig) *backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = defaultBackoffInitial
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultBackoffMax
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultBackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the delay before the upcoming redial and advances the
// attempt counter.
func (b *backoff) next() time.Duration {
	base := float64(b.cfg.Initial)
	for i := 0; i < b.attempt; i++ {
		base *= b.cfg.Multiplier
		if base >= float64(b.cfg.Max) {
			base = float64(b.cfg.Max)
			break
		}
	}
	b.attempt++

	delay := time.Duration(base)
	if b.cfg.Jitter > 0 {
		delay += time.Duration(base * b.cfg.Jitter * b.rng.Float64())
	}
	return delay
}

// reset starts the sequence over. Called after a successful dial.
func (b *backoff) reset() {
	b.attempt = 0
}
