package diskbuf

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"
)

// Ledger layout: a fixed 64-byte, 16-byte-aligned file. Every counter a
// writer or reader goroutine touches lives at its own 8-byte-aligned
// offset so it can be read and mutated with sync/atomic directly against
// the memory-mapped backing array, mirroring the atomics the original
// Rust implementation keeps in its archived ledger state.
const (
	ledgerMagic   uint32 = 0x52424c47 // "RBLG"
	ledgerVersion uint16 = 1
	ledgerSize           = 64

	offMagic               = 0
	offVersion             = 4
	offWriterNextRecordID  = 8
	offWriterCurrentFileID = 16
	offReaderCurrentFileID = 24
	offReaderLastRecordID  = 32
)

const (
	ledgerFileName = "buffer.db"
	lockFileName   = "buffer.lock"
)

// Ledger is the shared, memory-mapped source of truth a Writer and
// Reader coordinate through: four persisted atomic counters plus the
// runtime-only bookkeeping (byte budget, pending acks, wake channels)
// that does not need to survive a crash because losing it only causes
// extra re-reads, never lost or out-of-order records.
type Ledger struct {
	mm  WritableMmap
	buf []byte

	lock LockHandle
	dir  string

	flushInterval time.Duration
	lastFlushNano int64

	totalBufferSize int64 // atomic
	pendingAcks     int64 // atomic
	unackedOffset   int64 // atomic; segments read past but not yet acked
	writerDone      int32 // atomic bool

	readerNotify chan struct{}
	writerNotify chan struct{}
}

func (l *Ledger) word(offset int) *uint64 {
	return (*uint64)(unsafe.Pointer(&l.buf[offset]))
}

// openOrCreateLedger implements the load-or-create protocol: acquire
// the exclusive lock, map (and if necessary initialize) the ledger
// file, then rebuild the runtime-only byte budget by summing segment
// file sizes on disk.
func openOrCreateLedger(fs Filesystem, dir string, flushInterval time.Duration) (*Ledger, error) {
	if err := fs.MkdirAll(dir); err != nil {
		return nil, newError(KindLedgerIO, "create buffer dir %s", dir).withCause(err)
	}

	lock, err := fs.LockExclusive(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}

	mm, created, err := fs.OpenMmapWritable(filepath.Join(dir, ledgerFileName), ledgerSize)
	if err != nil {
		_ = lock.Unlock()
		return nil, newError(KindLedgerIO, "map ledger file").withCause(err)
	}

	l := &Ledger{
		mm:            mm,
		buf:           mm.Bytes(),
		lock:          lock,
		dir:           dir,
		flushInterval: flushInterval,
		readerNotify:  make(chan struct{}, 1),
		writerNotify:  make(chan struct{}, 1),
	}

	if created {
		l.initDefault()
		if err := l.mm.Flush(); err != nil {
			_ = l.Close()
			return nil, newError(KindLedgerIO, "flush freshly created ledger").withCause(err)
		}
	} else if err := l.validate(); err != nil {
		_ = l.Close()
		return nil, err
	}

	segs := newSegmentManager(fs, dir)
	total, err := segs.totalBytes()
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	atomic.StoreInt64(&l.totalBufferSize, total)

	return l, nil
}

func (l *Ledger) initDefault() {
	binary := l.buf
	putU32(binary, offMagic, ledgerMagic)
	putU16(binary, offVersion, ledgerVersion)
	atomic.StoreUint64(l.word(offWriterNextRecordID), 1)
	atomic.StoreUint64(l.word(offWriterCurrentFileID), 0)
	atomic.StoreUint64(l.word(offReaderCurrentFileID), 0)
	atomic.StoreUint64(l.word(offReaderLastRecordID), 0)
}

func (l *Ledger) validate() error {
	if got := getU32(l.buf, offMagic); got != ledgerMagic {
		return newError(KindFailedToDeserialize, "bad ledger magic 0x%x", got)
	}
	if got := getU16(l.buf, offVersion); got != ledgerVersion {
		return newError(KindFailedToDeserialize, "unsupported ledger version %d", got)
	}
	return nil
}

func putU32(b []byte, off int, v uint32) {
	b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func getU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
func putU16(b []byte, off int, v uint16) { b[off], b[off+1] = byte(v), byte(v>>8) }
func getU16(b []byte, off int) uint16    { return uint16(b[off]) | uint16(b[off+1])<<8 }

// GetTotalRecords returns the number of records currently buffered:
// assigned but not yet acknowledged.
func (l *Ledger) GetTotalRecords() uint64 {
	next := atomic.LoadUint64(l.word(offWriterNextRecordID))
	last := atomic.LoadUint64(l.word(offReaderLastRecordID))
	return next - last - 1
}

// IncrementNextWriterRecordID reserves count record ids for a new write
// and returns the first id in that range, the same fetch-add-and-return
// old-value shape as the original Rust ledger.
func (l *Ledger) IncrementNextWriterRecordID(count uint64) uint64 {
	newVal := atomic.AddUint64(l.word(offWriterNextRecordID), count)
	return newVal - count
}

func (l *Ledger) GetWriterCurrentFileID() uint16 {
	return uint16(atomic.LoadUint64(l.word(offWriterCurrentFileID)))
}

func (l *Ledger) SetWriterCurrentFileID(id uint16) {
	atomic.StoreUint64(l.word(offWriterCurrentFileID), uint64(id))
}

func (l *Ledger) GetReaderCurrentFileID() uint16 {
	return uint16(atomic.LoadUint64(l.word(offReaderCurrentFileID)))
}

func (l *Ledger) SetReaderCurrentFileID(id uint16) {
	atomic.StoreUint64(l.word(offReaderCurrentFileID), uint64(id))
}

func (l *Ledger) GetReaderLastRecordID() uint64 {
	return atomic.LoadUint64(l.word(offReaderLastRecordID))
}

// AdvanceReaderAcked commits a new, larger reader_last_record_id. It is
// a no-op if id is not actually ahead, since acks can be resolved more
// than once during the ordered-finalizer draining protocol.
func (l *Ledger) AdvanceReaderAcked(id uint64) {
	for {
		cur := atomic.LoadUint64(l.word(offReaderLastRecordID))
		if id <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(l.word(offReaderLastRecordID), cur, id) {
			return
		}
	}
}

// TrackWrite records newly appended bytes against the byte budget.
func (l *Ledger) TrackWrite(n int64) { atomic.AddInt64(&l.totalBufferSize, n) }

// TrackDelete records bytes freed by an unlinked segment.
func (l *Ledger) TrackDelete(n int64) { atomic.AddInt64(&l.totalBufferSize, -n) }

// TotalBufferSize is the runtime-reconstructed byte budget in use.
func (l *Ledger) TotalBufferSize() int64 { return atomic.LoadInt64(&l.totalBufferSize) }

// IncrementUnackedOffset / DecrementUnackedOffset track how many
// segments the reader has read past but not yet acknowledged; lost on
// crash by design, which is exactly what forces a restart to re-read
// (and the consumer to re-process) that range.
func (l *Ledger) IncrementUnackedOffset() { atomic.AddInt64(&l.unackedOffset, 1) }

func (l *Ledger) DecrementUnackedOffset() {
	for {
		cur := atomic.LoadInt64(&l.unackedOffset)
		if cur == 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&l.unackedOffset, cur, cur-1) {
			return
		}
	}
}

func (l *Ledger) UnackedOffset() int64 { return atomic.LoadInt64(&l.unackedOffset) }

// MarkWriterDone is called once by the writer on Close.
func (l *Ledger) MarkWriterDone() { atomic.StoreInt32(&l.writerDone, 1) }

func (l *Ledger) WriterDone() bool { return atomic.LoadInt32(&l.writerDone) == 1 }

// NotifyReaderWaiters wakes a reader blocked in WaitForWriter. Single
// permit: a notification that arrives with nobody waiting is coalesced
// into the next wait instead of queuing.
func (l *Ledger) NotifyReaderWaiters() { notify(l.readerNotify) }

// NotifyWriterWaiters wakes a writer blocked in WaitForReader.
func (l *Ledger) NotifyWriterWaiters() { notify(l.writerNotify) }

// WaitForReader blocks until the reader makes progress (frees buffer
// budget or advances the file-id ring) or ctx is done.
func (l *Ledger) WaitForReader(ctx context.Context) error { return wait(ctx, l.writerNotify) }

// WaitForWriter blocks until the writer appends more data or closes, or
// ctx is done.
func (l *Ledger) WaitForWriter(ctx context.Context) error { return wait(ctx, l.readerNotify) }

func wait(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return newError(KindCancelled, "wait interrupted").withCause(ctx.Err())
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// ShouldFlush reports whether enough time has passed since the last
// flush to justify another msync, using a CAS loop over the stored
// timestamp so concurrent callers don't double-flush.
func (l *Ledger) ShouldFlush(now time.Time) bool {
	if l.flushInterval <= 0 {
		return true
	}
	nowNano := now.UnixNano()
	last := atomic.LoadInt64(&l.lastFlushNano)
	if nowNano-last < int64(l.flushInterval) {
		return false
	}
	return atomic.CompareAndSwapInt64(&l.lastFlushNano, last, nowNano)
}

// Flush msyncs the ledger's mapped pages to disk.
func (l *Ledger) Flush() error {
	if err := l.mm.Flush(); err != nil {
		return newError(KindLedgerIO, "flush ledger").withCause(err)
	}
	return nil
}

// Close unmaps the ledger and releases the exclusive lock. Safe to call
// once the paired Writer and Reader have both already closed.
func (l *Ledger) Close() error {
	var firstErr error
	if err := l.mm.Close(); err != nil {
		firstErr = err
	}
	if err := l.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return newError(KindLedgerIO, "close ledger").withCause(firstErr)
	}
	return nil
}
