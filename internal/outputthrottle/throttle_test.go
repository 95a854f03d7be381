package outputthrottle

import (
	"testing"
	"time"
)

func TestUnderThresholdAlwaysSends(t *testing.T) {
	b := New()
	if !b.ShouldSend(1024) {
		t.Fatal("expected small chunk under verbatim threshold to be allowed")
	}
	b.RecordSent(1024)
	if !b.ShouldSend(1024) {
		t.Fatal("expected second small chunk to still be allowed")
	}
}

func TestOverThresholdThrottles(t *testing.T) {
	b := New()
	b.RecordSent(Verbatim) // push total to exactly the threshold
	if !b.ShouldSend(BurstCap) {
		t.Fatal("expected full burst allowance to be available right after crossing threshold")
	}
	b.RecordSent(BurstCap)
	if b.ShouldSend(1) {
		t.Fatal("expected allowance to be exhausted after consuming the full burst")
	}
}

func TestRefillOverTime(t *testing.T) {
	fake := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New()
	b.now = func() time.Time { return fake }

	b.RecordSent(Verbatim)
	b.RecordSent(BurstCap) // exhaust allowance

	fake = fake.Add(time.Second)
	if !b.ShouldSend(RefillRate) {
		t.Fatal("expected one second of refill to restore RefillRate bytes of allowance")
	}
}

func TestResetClearsState(t *testing.T) {
	b := New()
	b.RecordSent(Verbatim + BurstCap)
	b.Reset()
	if !b.ShouldSend(Verbatim) {
		t.Fatal("expected Reset to restore verbatim-threshold behavior")
	}
}
