package chart

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

func s(ts int64) wire.Sample { return wire.Sample{Timestamp: ts} }

func timestamps(samples []wire.Sample) []int64 {
	out := make([]int64, len(samples))
	for i, v := range samples {
		out[i] = v.Timestamp
	}
	return out
}

func TestPushBelowCapacity(t *testing.T) {
	r := New(5)
	r.Push(s(1), s(2), s(3))

	if r.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", r.Len())
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, timestamps(r.Snapshot())); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
}

func TestPushEvictsOldest(t *testing.T) {
	r := New(3)
	r.Push(s(1), s(2), s(3), s(4), s(5))

	if r.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", r.Len())
	}
	if diff := cmp.Diff([]int64{3, 4, 5}, timestamps(r.Snapshot())); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
}

func TestPushBurstLargerThanCapacity(t *testing.T) {
	r := New(4)
	var burst []wire.Sample
	for i := int64(1); i <= 10; i++ {
		burst = append(burst, s(i))
	}
	r.Push(burst...)

	if diff := cmp.Diff([]int64{7, 8, 9, 10}, timestamps(r.Snapshot())); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	r := New(3)
	r.Push(s(1), s(2))
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", r.Len())
	}
	r.Push(s(9))
	if diff := cmp.Diff([]int64{9}, timestamps(r.Snapshot())); diff != "" {
		t.Errorf("snapshot after Clear+Push (-want +got):\n%s", diff)
	}
}
