// Package outputthrottle bounds how much of a command's PTY output is
// mirrored to the daemon: small commands are sent verbatim, large ones are
// rate-limited so a runaway producer (e.g. `yes`, a build log) never floods
// the transport. Local stdout is never throttled — only the daemon mirror.
package outputthrottle

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	// Verbatim is the per-command byte threshold under which every chunk
	// is accepted without rate limiting.
	Verbatim = 2 * 1024 * 1024

	// RefillRate is the token bucket's steady-state allowance once a
	// command has exceeded Verbatim.
	RefillRate = 10 * 1024 // bytes/sec

	// BurstCap bounds how much unused allowance can accumulate.
	BurstCap = 10 * 1024
)

// Bucket is a per-command token bucket gating output sent to the daemon
// mirror once a command's cumulative output exceeds Verbatim. It wraps a
// rate.Limiter the same way the teacher's BandwidthMeter does, but exposes a
// check/commit pair instead of Wait/Allow: the caller needs to decide
// whether to send a chunk before it knows the write succeeded.
type Bucket struct {
	total int64
	lim   *rate.Limiter
	now   func() time.Time
}

// New creates a Bucket with a full initial allowance.
func New() *Bucket {
	return &Bucket{
		lim: rate.NewLimiter(rate.Limit(RefillRate), BurstCap),
		now: time.Now,
	}
}

// ShouldSend reports whether a chunk of length n may be sent right now,
// without consuming any allowance. Below the Verbatim threshold this is
// always true.
func (b *Bucket) ShouldSend(n int) bool {
	if b.total+int64(n) <= Verbatim {
		return true
	}
	return b.lim.TokensAt(b.now()) >= float64(n)
}

// RecordSent consumes allowance (once past the verbatim threshold) and
// advances the cumulative total sent for the current command.
func (b *Bucket) RecordSent(n int) {
	if b.total < Verbatim {
		b.total += int64(n)
		return
	}
	consume := n
	if consume > BurstCap {
		consume = BurstCap
	}
	b.lim.ReserveN(b.now(), consume)
	b.total += int64(n)
}

// Reset clears the bucket for the start of a new command, called on
// CommandComplete.
func (b *Bucket) Reset() {
	b.total = 0
	b.lim = rate.NewLimiter(rate.Limit(RefillRate), BurstCap)
}
