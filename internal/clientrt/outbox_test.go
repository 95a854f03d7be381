package clientrt

import (
	"testing"

	"github.com/omnish-sh/omnish/internal/wire"
)

func TestOutboxPushAndDrainPreservesOrder(t *testing.T) {
	o := NewOutbox(0)
	o.Push(wire.IoData{SessionID: "a"})
	o.Push(wire.IoData{SessionID: "b"})
	o.Push(wire.IoData{SessionID: "c"})

	drained := o.Drain()
	if len(drained) != 3 {
		t.Fatalf("len = %d, want 3", len(drained))
	}
	if drained[0].(wire.IoData).SessionID != "a" || drained[2].(wire.IoData).SessionID != "c" {
		t.Errorf("order not preserved: %+v", drained)
	}
	if o.Len() != 0 {
		t.Errorf("expected Outbox empty after Drain, got len=%d", o.Len())
	}
}

func TestOutboxDropsOldestOnOverflow(t *testing.T) {
	o := NewOutbox(2)
	o.Push(wire.IoData{SessionID: "a"})
	o.Push(wire.IoData{SessionID: "b"})
	o.Push(wire.IoData{SessionID: "c"})

	drained := o.Drain()
	if len(drained) != 2 {
		t.Fatalf("len = %d, want 2", len(drained))
	}
	if drained[0].(wire.IoData).SessionID != "b" || drained[1].(wire.IoData).SessionID != "c" {
		t.Errorf("expected oldest dropped, got %+v", drained)
	}
}

func TestOutboxDefaultsCapacityWhenNonPositive(t *testing.T) {
	o := NewOutbox(-1)
	if o.capacity != defaultOutboxCapacity {
		t.Errorf("capacity = %d, want default %d", o.capacity, defaultOutboxCapacity)
	}
}
