package diskbuf

import (
	"context"
	"sync"
	"time"

	"github.com/dsjohal14/ledgerbuf/internal/libs/accel"
	"github.com/rs/zerolog"
)

// Writer is the single producer-side handle onto a buffer directory. It
// assigns record ids, appends framed records to the current segment,
// rotates onto a new segment at the configured size, and applies
// backpressure once the byte budget or the file-id ring is exhausted.
// Grounded on the teacher's mutex-guarded WALWriter, generalized from a
// single always-rotate segment to a modular file-id ring with
// reader-aware backpressure.
type Writer struct {
	mu sync.Mutex

	ledger  *Ledger
	fs      Filesystem
	segs    *segmentManager
	opts    Options
	logger  zerolog.Logger
	batch   *accel.Batch
	current WritableFile
	fileID  uint16
	offset  int64
	closed  bool
}

func openWriter(ledger *Ledger, fs Filesystem, segs *segmentManager, opts Options, logger zerolog.Logger) (*Writer, error) {
	w := &Writer{
		ledger: ledger,
		fs:     fs,
		segs:   segs,
		opts:   opts,
		logger: logger,
		batch:  accel.NewBatch(100),
		fileID: ledger.GetWriterCurrentFileID(),
	}
	if err := w.openCurrentSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

// openCurrentSegment opens (creating if necessary) the writer's current
// segment, truncating a torn tail left by a crash mid-append the same
// way the teacher's WAL writer truncates a corrupt tail on open.
func (w *Writer) openCurrentSegment() error {
	path := w.segs.path(w.fileID)

	if info, err := w.fs.Stat(path); err == nil && info.Size() > 0 {
		rf, rerr := w.fs.OpenReadable(path)
		if rerr == nil {
			validOffset := findLastValidFrame(structReader{rf})
			_ = rf.Close()
			if validOffset < info.Size() {
				w.logger.Warn().Str("segment", path).Int64("from", info.Size()).Int64("to", validOffset).Msg("truncating torn segment tail")
				if terr := w.fs.Truncate(path, validOffset); terr != nil {
					return newError(KindSegmentIO, "truncate torn tail of %s", path).withCause(terr)
				}
			}
		}
	}

	f, err := w.fs.OpenWritable(path)
	if err != nil {
		return newError(KindSegmentIO, "open segment %s for append", path).withCause(err)
	}
	n, err := f.Len()
	if err != nil {
		_ = f.Close()
		return newError(KindSegmentIO, "stat segment %s", path).withCause(err)
	}

	w.current = f
	w.offset = n
	return nil
}

// structReader adapts a ReadableFile to io.Reader for findLastValidFrame.
type structReader struct{ rf ReadableFile }

func (s structReader) Read(p []byte) (int, error) { return s.rf.Read(p) }

// Write appends payload as a single record covering eventCount logical
// events and returns the record id assigned to its first event. It
// blocks (honoring ctx) while the byte budget or file-id ring is full
// and Options.WhenFull is WhenFullBlock.
func (w *Writer) Write(ctx context.Context, payload []byte, eventCount uint64) (uint64, error) {
	if len(payload) > MaxPayloadSize {
		return 0, newError(KindRecordTooLarge, "payload %d bytes exceeds max %d", len(payload), MaxPayloadSize)
	}
	recordSize := int64(HeaderSize + len(payload) + 4)
	if recordSize > w.opts.MaxSegmentSize {
		return 0, newError(KindRecordTooLarge, "record %d bytes exceeds max segment size %d", recordSize, w.opts.MaxSegmentSize)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, newError(KindLedgerIO, "writer is closed")
	}

	for {
		wouldExceedBudget := w.ledger.TotalBufferSize()+recordSize > w.opts.MaxBufferSize
		wouldFillRing := w.offset+recordSize >= w.opts.MaxSegmentSize &&
			nextFileID(w.fileID) == w.ledger.GetReaderCurrentFileID()

		if !wouldExceedBudget && !wouldFillRing {
			break
		}
		if w.opts.WhenFull == WhenFullDropNewest {
			return 0, newError(KindBufferFull, "buffer full")
		}

		w.mu.Unlock()
		err := w.ledger.WaitForReader(ctx)
		w.mu.Lock()
		if err != nil {
			return 0, err
		}
		if w.closed {
			return 0, newError(KindLedgerIO, "writer is closed")
		}
	}

	firstID := w.ledger.IncrementNextWriterRecordID(eventCount)
	rec, err := NewRecord(firstID, eventCount, payload)
	if err != nil {
		return 0, err
	}
	data := rec.Encode()

	n, err := w.current.Write(data)
	if err != nil {
		return 0, newError(KindSegmentIO, "append record").withCause(err)
	}
	w.offset += int64(n)
	w.ledger.TrackWrite(int64(n))

	shouldFlush := w.opts.FlushInterval <= 0 || w.batch.Add(int(eventCount)) || w.ledger.ShouldFlush(time.Now())
	if shouldFlush {
		if err := w.current.Sync(); err != nil {
			return 0, newError(KindSegmentIO, "sync segment").withCause(err)
		}
		if err := w.ledger.Flush(); err != nil {
			return 0, err
		}
		w.batch.Reset()
	}

	if w.offset >= w.opts.MaxSegmentSize {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	w.ledger.NotifyReaderWaiters()
	return firstID, nil
}

func (w *Writer) rotateLocked() error {
	if err := w.current.Sync(); err != nil {
		return newError(KindSegmentIO, "sync before rotate").withCause(err)
	}
	if err := w.current.Close(); err != nil {
		return newError(KindSegmentIO, "close before rotate").withCause(err)
	}

	next := nextFileID(w.fileID)
	if next == w.ledger.GetReaderCurrentFileID() {
		return newError(KindBufferFull, "file-id ring exhausted: next id %d is the reader's current segment", next)
	}
	if info, err := w.fs.Stat(w.segs.path(next)); err == nil && info.Size() > 0 {
		return newError(KindSegmentIO, "next segment %d already exists with %d bytes", next, info.Size())
	}

	w.fileID = next
	w.ledger.SetWriterCurrentFileID(next)
	return w.openCurrentSegment()
}

// Close flushes and closes the current segment and marks the ledger's
// writer-done flag so the reader can tell end-of-stream apart from a
// momentary stall.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.current != nil {
		if serr := w.current.Sync(); serr != nil {
			err = newError(KindSegmentIO, "sync on close").withCause(serr)
		}
		if cerr := w.current.Close(); cerr != nil && err == nil {
			err = newError(KindSegmentIO, "close segment").withCause(cerr)
		}
	}
	w.ledger.MarkWriterDone()
	w.ledger.NotifyReaderWaiters()
	return err
}
