// Package jobs tracks out-of-order acknowledgements until they form a
// contiguous, resolvable prefix.
package jobs

import "sort"

// Batch is one outstanding acknowledgement: the record id that becomes
// the new ledger checkpoint once every batch before it (by sequence
// number) has also resolved.
type Batch struct {
	Seq        uint64
	LastRecord uint64
	Resolved   bool
}

// PendingAcks holds batches keyed by the monotonic sequence number the
// reader assigned them at read time, and drains the contiguous prefix
// starting at NextToEmit whenever a new batch resolves.
type PendingAcks struct {
	NextToEmit uint64
	pending    map[uint64]*Batch
}

// NewPendingAcks creates a tracker starting at sequence number 0.
func NewPendingAcks() *PendingAcks {
	return &PendingAcks{pending: make(map[uint64]*Batch)}
}

// Enqueue registers a new in-flight batch and returns its sequence
// number.
func (p *PendingAcks) Enqueue(lastRecord uint64) uint64 {
	seq := p.NextToEmit + uint64(len(p.pending))
	p.pending[seq] = &Batch{Seq: seq, LastRecord: lastRecord}
	return seq
}

// Resolve marks a batch acknowledged. It returns the highest
// LastRecord among the contiguous run of resolved batches starting at
// NextToEmit, and advances NextToEmit past them; ok is false if
// resolving seq didn't unblock any new prefix (an earlier, still
// unresolved batch is in the way).
func (p *PendingAcks) Resolve(seq uint64) (lastRecord uint64, ok bool) {
	b, exists := p.pending[seq]
	if !exists {
		return 0, false
	}
	b.Resolved = true

	var drained uint64
	advanced := false
	for {
		next, exists := p.pending[p.NextToEmit]
		if !exists || !next.Resolved {
			break
		}
		drained = next.LastRecord
		delete(p.pending, p.NextToEmit)
		p.NextToEmit++
		advanced = true
	}
	return drained, advanced
}

// Count returns the number of unresolved or undrained batches.
func (p *PendingAcks) Count() int { return len(p.pending) }

// PendingSeqs returns outstanding sequence numbers in ascending order,
// for diagnostics.
func (p *PendingAcks) PendingSeqs() []uint64 {
	seqs := make([]uint64, 0, len(p.pending))
	for seq := range p.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
