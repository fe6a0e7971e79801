package diskbuf

import "testing"

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := openOrCreateLedger(NewLocalFilesystem(), t.TempDir(), 0)
	if err != nil {
		t.Fatalf("openOrCreateLedger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestFinalizerInOrderAcksAdvanceLedger(t *testing.T) {
	l := newTestLedger(t)
	var committed []uint64
	f := newFinalizer(l, func(id uint64) { committed = append(committed, id) })

	a1 := f.submit(10)
	a2 := f.submit(20)

	a1.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 10 {
		t.Errorf("expected ledger to advance to 10, got %d", l.GetReaderLastRecordID())
	}

	a2.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 20 {
		t.Errorf("expected ledger to advance to 20, got %d", l.GetReaderLastRecordID())
	}
	if len(committed) != 2 || committed[0] != 10 || committed[1] != 20 {
		t.Errorf("unexpected commit callback sequence: %v", committed)
	}
}

func TestFinalizerOutOfOrderAcksHoldUntilPrefixComplete(t *testing.T) {
	l := newTestLedger(t)
	var committed []uint64
	f := newFinalizer(l, func(id uint64) { committed = append(committed, id) })

	a1 := f.submit(10)
	a2 := f.submit(20)
	a3 := f.submit(30)

	a2.Resolve(AckSuccess)
	a3.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 0 {
		t.Errorf("expected ledger to stay at 0 until the first batch resolves, got %d", l.GetReaderLastRecordID())
	}
	if len(committed) != 0 {
		t.Errorf("expected no commits yet, got %v", committed)
	}

	a1.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 30 {
		t.Errorf("expected ledger to jump to 30 once the prefix completes, got %d", l.GetReaderLastRecordID())
	}
	if len(committed) != 1 || committed[0] != 30 {
		t.Errorf("expected a single commit for the drained prefix, got %v", committed)
	}
}

func TestFinalizerAckFailedStillAdvancesOrderedPrefix(t *testing.T) {
	l := newTestLedger(t)
	var committed []uint64
	f := newFinalizer(l, func(id uint64) { committed = append(committed, id) })

	a1 := f.submit(10)
	a2 := f.submit(20)

	a1.Resolve(AckFailed)
	if l.GetReaderLastRecordID() != 10 {
		t.Errorf("expected a failed ack to still advance the checkpoint to 10, got %d", l.GetReaderLastRecordID())
	}

	a2.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 20 {
		t.Errorf("expected the prefix to keep advancing past a failed ack, got %d", l.GetReaderLastRecordID())
	}
	if len(committed) != 2 || committed[0] != 10 || committed[1] != 20 {
		t.Errorf("unexpected commit callback sequence: %v", committed)
	}
	if f.PendingCount() != 0 {
		t.Errorf("expected no batches left pending, got %d", f.PendingCount())
	}
}

func TestFinalizerFailedBatchUnblocksLaterSuccessfulBatches(t *testing.T) {
	l := newTestLedger(t)
	f := newFinalizer(l, nil)

	a1 := f.submit(10)
	a2 := f.submit(20)
	a3 := f.submit(30)

	a2.Resolve(AckSuccess)
	a3.Resolve(AckSuccess)
	if l.GetReaderLastRecordID() != 0 {
		t.Errorf("expected ledger to stay at 0 until the first batch resolves, got %d", l.GetReaderLastRecordID())
	}

	a1.Resolve(AckFailed)
	if l.GetReaderLastRecordID() != 30 {
		t.Errorf("expected a failed first batch to still unblock the drained prefix, got %d", l.GetReaderLastRecordID())
	}
}
