package jobs

import "testing"

func TestPendingAcksInOrder(t *testing.T) {
	p := NewPendingAcks()

	seq := p.Enqueue(10)
	last, ok := p.Resolve(seq)
	if !ok || last != 10 {
		t.Fatalf("expected immediate drain of seq 0, got last=%d ok=%v", last, ok)
	}
	if p.NextToEmit != 1 {
		t.Errorf("expected NextToEmit=1, got %d", p.NextToEmit)
	}
}

func TestPendingAcksOutOfOrder(t *testing.T) {
	p := NewPendingAcks()

	s0 := p.Enqueue(10)
	s1 := p.Enqueue(20)
	s2 := p.Enqueue(30)

	// Resolve the middle and last batch first; neither should drain
	// anything since seq 0 hasn't resolved yet.
	if _, ok := p.Resolve(s1); ok {
		t.Fatal("resolving s1 before s0 should not drain")
	}
	if _, ok := p.Resolve(s2); ok {
		t.Fatal("resolving s2 before s0 should not drain")
	}
	if p.Count() != 3 {
		t.Errorf("expected 3 pending batches, got %d", p.Count())
	}

	// Resolving s0 should drain the whole contiguous run.
	last, ok := p.Resolve(s0)
	if !ok || last != 30 {
		t.Fatalf("expected drain through seq 2 (last=30), got last=%d ok=%v", last, ok)
	}
	if p.Count() != 0 {
		t.Errorf("expected queue empty after full drain, got %d", p.Count())
	}
	if p.NextToEmit != 3 {
		t.Errorf("expected NextToEmit=3, got %d", p.NextToEmit)
	}
}

func TestPendingAcksUnknownSeq(t *testing.T) {
	p := NewPendingAcks()
	if _, ok := p.Resolve(42); ok {
		t.Fatal("resolving an unknown sequence number should not drain")
	}
}
