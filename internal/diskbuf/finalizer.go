package diskbuf

import (
	"sync"

	"github.com/dsjohal14/ledgerbuf/internal/libs/jobs"
)

// AckStatus is how a consumer resolves a record it was handed by Read.
type AckStatus int

const (
	// AckSuccess means the consumer is done with the record; once every
	// record before it (in record-id order) has also been resolved, the
	// ledger's checkpoint advances past it and its segment becomes
	// eligible for deletion.
	AckSuccess AckStatus = iota
	// AckFailed means the consumer could not process the record. The
	// finalizer treats it exactly like AckSuccess: it resolves the
	// record's slot in the ordered prefix, the checkpoint advances past
	// it, and the record is not redelivered. A failed ack only unblocks
	// batches queued behind it, it never blocks them.
	AckFailed
)

// Finalizer aggregates out-of-order consumer acknowledgements into the
// contiguous, in-order prefix the ledger is allowed to checkpoint past.
// Reads are handed out in record-id order, but a consumer processing
// them concurrently may finish (and ack) them out of order; the
// finalizer is what makes that safe to reflect in a single monotonic
// ledger counter. Grounded on the ordered-finalizer design, with the
// pending-batch bookkeeping itself implemented by the jobs package.
type Finalizer struct {
	mu       sync.Mutex
	ledger   *Ledger
	pending  *jobs.PendingAcks
	onCommit func(lastRecordID uint64)
}

func newFinalizer(ledger *Ledger, onCommit func(uint64)) *Finalizer {
	return &Finalizer{
		ledger:   ledger,
		pending:  jobs.NewPendingAcks(),
		onCommit: onCommit,
	}
}

// Ack is returned alongside each record Read delivers; Resolve should
// be called exactly once per record.
type Ack struct {
	f   *Finalizer
	seq uint64
}

// Resolve reports the consumer's outcome for this record.
func (a *Ack) Resolve(status AckStatus) {
	a.f.resolve(a.seq, status)
}

// submit registers a newly delivered record's last event id and
// returns the handle the caller must eventually Resolve.
func (f *Finalizer) submit(lastRecordID uint64) *Ack {
	f.mu.Lock()
	seq := f.pending.Enqueue(lastRecordID)
	f.mu.Unlock()
	return &Ack{f: f, seq: seq}
}

// resolve marks seq's batch resolved and, regardless of status, lets it
// be drained as part of the ordered prefix: a failed ack must not block
// every batch queued behind it from ever advancing the checkpoint.
func (f *Finalizer) resolve(seq uint64, status AckStatus) {
	f.mu.Lock()
	lastRecordID, drained := f.pending.Resolve(seq)
	f.mu.Unlock()

	if !drained {
		return
	}
	f.ledger.AdvanceReaderAcked(lastRecordID)
	if f.onCommit != nil {
		f.onCommit(lastRecordID)
	}
	f.ledger.NotifyWriterWaiters()
}

// PendingCount reports how many submitted acks are still outstanding.
func (f *Finalizer) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Count()
}
