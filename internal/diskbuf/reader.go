package diskbuf

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// pendingSegment is a segment the reader has read past but can't yet
// unlink because not every record in it has been acknowledged.
type pendingSegment struct {
	fileID      uint16
	maxRecordID uint64
}

// Reader is the single consumer-side handle onto a buffer directory. It
// replays from the ledger's last acknowledged position on open, then
// delivers records in order, handing each one back with an Ack the
// caller must resolve. Segment files are unlinked only once every
// record inside them has been resolved (with either AckSuccess or
// AckFailed). Grounded on the
// teacher's segment iterator for the read loop mechanics and on its
// recovery manager for the startup replay, generalized from rebuilding
// a document index to skipping already-acknowledged bytes.
type Reader struct {
	mu sync.Mutex

	ledger    *Ledger
	fs        Filesystem
	segs      *segmentManager
	opts      Options
	finalizer *Finalizer
	logger    zerolog.Logger

	current     ReadableFile
	rr          *RecordReader
	fileID      uint16
	lastSeenMax uint64
	stashed     *Record

	pending []pendingSegment
	closed  bool
}

func newReader(ledger *Ledger, fs Filesystem, segs *segmentManager, opts Options, logger zerolog.Logger) *Reader {
	return &Reader{
		ledger: ledger,
		fs:     fs,
		segs:   segs,
		opts:   opts,
		logger: logger,
		fileID: ledger.GetReaderCurrentFileID(),
	}
}

func (r *Reader) attachFinalizer(f *Finalizer) { r.finalizer = f }

// seekToLastAcked replays forward from the ledger's persisted reader
// position, silently discarding records at or before
// reader_last_record_id, until it finds the first record the consumer
// hasn't acknowledged yet (or catches up to the writer with nothing
// left). Any segment found to be entirely already-acknowledged is
// unlinked immediately, cleaning up files a crash left behind between
// the ack commit and the unlink.
func (r *Reader) seekToLastAcked() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		rec, err := r.nextFrameLocked()
		if err != nil {
			return err
		}
		if rec == nil {
			if r.fileID == r.ledger.GetWriterCurrentFileID() {
				return nil
			}
			path := r.segs.path(r.fileID)
			if info, statErr := r.fs.Stat(path); statErr == nil {
				if err := r.segs.unlink(r.fileID); err == nil {
					r.ledger.TrackDelete(info.Size())
				}
			}
			r.closeCurrentLocked()
			r.fileID = nextFileID(r.fileID)
			r.ledger.SetReaderCurrentFileID(r.fileID)
			r.lastSeenMax = 0
			continue
		}

		lastID := rec.FirstRecordID + rec.EventCount - 1
		if lastID > r.ledger.GetReaderLastRecordID() {
			r.stashed = rec
			return nil
		}
		// Already acknowledged in a prior process lifetime; discard.
	}
}

// nextFrameLocked opens the current segment if needed and returns the
// next frame in it, or (nil, nil) at a clean end of file. Callers hold
// r.mu.
func (r *Reader) nextFrameLocked() (*Record, error) {
	if r.current == nil {
		f, err := r.fs.OpenReadable(r.segs.path(r.fileID))
		if err != nil {
			return nil, newError(KindSegmentIO, "open segment %d for read", r.fileID).withCause(err)
		}
		r.current = f
		r.rr = NewRecordReader(structReader{f})
	}

	rec, err := r.rr.Next()
	if err != nil {
		return nil, err
	}
	if rec != nil {
		last := rec.FirstRecordID + rec.EventCount - 1
		if last > r.lastSeenMax {
			r.lastSeenMax = last
		}
	}
	return rec, nil
}

func (r *Reader) closeCurrentLocked() {
	if r.current != nil {
		_ = r.current.Close()
		r.current = nil
		r.rr = nil
	}
}

// Read returns the next record in FIFO order along with an Ack the
// caller must resolve. It returns (nil, nil, nil) once the writer has
// closed and every buffered record has been delivered; it blocks
// (honoring ctx) while waiting for the writer to append more data.
func (r *Reader) Read(ctx context.Context) (*Record, *Ack, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, nil, newError(KindLedgerIO, "reader is closed")
		}

		if r.stashed != nil {
			rec := r.stashed
			r.stashed = nil
			ack := r.finalizer.submit(rec.FirstRecordID + rec.EventCount - 1)
			r.mu.Unlock()
			return rec, ack, nil
		}

		rec, err := r.nextFrameLocked()
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}

		if rec == nil {
			writerFileID := r.ledger.GetWriterCurrentFileID()
			if r.fileID != writerFileID {
				r.pending = append(r.pending, pendingSegment{fileID: r.fileID, maxRecordID: r.lastSeenMax})
				r.ledger.IncrementUnackedOffset()
				r.closeCurrentLocked()
				r.fileID = nextFileID(r.fileID)
				r.lastSeenMax = 0
				r.mu.Unlock()
				continue
			}

			done := r.ledger.WriterDone()
			r.mu.Unlock()
			if done {
				return nil, nil, nil
			}
			if err := r.ledger.WaitForWriter(ctx); err != nil {
				return nil, nil, err
			}
			continue
		}

		ack := r.finalizer.submit(rec.FirstRecordID + rec.EventCount - 1)
		r.mu.Unlock()
		return rec, ack, nil
	}
}

// TryRead is the non-blocking form of Read: if no record is
// immediately available it returns (nil, nil, nil) instead of waiting
// for the writer to append more data. Used by request/response
// callers (like the HTTP API) that can't hold a connection open across
// an indefinite wait.
func (r *Reader) TryRead() (*Record, *Ack, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, nil, newError(KindLedgerIO, "reader is closed")
		}

		if r.stashed != nil {
			rec := r.stashed
			r.stashed = nil
			ack := r.finalizer.submit(rec.FirstRecordID + rec.EventCount - 1)
			r.mu.Unlock()
			return rec, ack, nil
		}

		rec, err := r.nextFrameLocked()
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}

		if rec == nil {
			writerFileID := r.ledger.GetWriterCurrentFileID()
			if r.fileID != writerFileID {
				r.pending = append(r.pending, pendingSegment{fileID: r.fileID, maxRecordID: r.lastSeenMax})
				r.ledger.IncrementUnackedOffset()
				r.closeCurrentLocked()
				r.fileID = nextFileID(r.fileID)
				r.lastSeenMax = 0
				r.mu.Unlock()
				continue
			}
			r.mu.Unlock()
			return nil, nil, nil
		}

		ack := r.finalizer.submit(rec.FirstRecordID + rec.EventCount - 1)
		r.mu.Unlock()
		return rec, ack, nil
	}
}

// onAckCommitted is the finalizer's onCommit hook: once the ledger's
// checkpoint reaches or passes a pending segment's highest record id,
// that segment is safe to unlink and the ledger's persisted reader
// position advances past it.
func (r *Reader) onAckCommitted(committedID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.pending) > 0 && r.pending[0].maxRecordID <= committedID {
		seg := r.pending[0]
		r.pending = r.pending[1:]

		path := r.segs.path(seg.fileID)
		info, statErr := r.fs.Stat(path)
		if err := r.segs.unlink(seg.fileID); err != nil {
			r.logger.Warn().Err(err).Uint16("file_id", seg.fileID).Msg("failed to unlink acknowledged segment")
			continue
		}
		if statErr == nil {
			r.ledger.TrackDelete(info.Size())
		}
		r.ledger.DecrementUnackedOffset()
		r.ledger.SetReaderCurrentFileID(nextFileID(seg.fileID))
	}
}

// Close releases the reader's open segment handle. It does not unlink
// any files; cleanup of fully-acknowledged segments continues through
// onAckCommitted even if no Reader is currently open, and any segment
// this reader read past but never acknowledged is safely re-read by the
// next open.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.closeCurrentLocked()
	return nil
}

// Stats summarizes reader-visible progress, used by the janitor and the
// HTTP stats endpoint.
type Stats struct {
	TotalRecords     uint64
	TotalBufferBytes int64
	PendingAcks      int
	UnackedSegments  int64
	WriterCurrentID  uint16
	ReaderCurrentID  uint16
}

// Stats snapshots the ledger and reader state.
func (r *Reader) Stats() Stats {
	r.mu.Lock()
	pendingAcks := 0
	if r.finalizer != nil {
		pendingAcks = r.finalizer.PendingCount()
	}
	r.mu.Unlock()

	return Stats{
		TotalRecords:     r.ledger.GetTotalRecords(),
		TotalBufferBytes: r.ledger.TotalBufferSize(),
		PendingAcks:      pendingAcks,
		UnackedSegments:  r.ledger.UnackedOffset(),
		WriterCurrentID:  r.ledger.GetWriterCurrentFileID(),
		ReaderCurrentID:  r.ledger.GetReaderCurrentFileID(),
	}
}
