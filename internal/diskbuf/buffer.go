package diskbuf

import (
	"github.com/dsjohal14/ledgerbuf/internal/libs/obs"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Buffer is the paired Writer/Reader handle onto a single buffer
// directory. Only one Buffer should ever be open against a given
// DataDir at a time; the ledger's exclusive lock enforces that at the
// process level the way the teacher's store enforces single-writer
// access to its WAL directory.
type Buffer struct {
	ledger    *Ledger
	segs      *segmentManager
	writer    *Writer
	reader    *Reader
	finalizer *Finalizer
	logger    zerolog.Logger
}

// Open creates the data directory if needed, loads or initializes its
// ledger, replays the reader forward past anything already
// acknowledged, and returns a ready-to-use Buffer. Grounded on the
// teacher's NewWALStore sequencing: acquire the lock, recover the
// ledger, then recover the read cursor, before handing control to
// callers.
func Open(opts Options) (*Buffer, error) {
	opts = opts.withDefaults()
	logger := obs.Logger("diskbuf")
	fs := NewLocalFilesystem()

	ledger, err := openOrCreateLedger(fs, opts.DataDir, opts.FlushInterval)
	if err != nil {
		return nil, err
	}

	segs := newSegmentManager(fs, opts.DataDir)

	writer, err := openWriter(ledger, fs, segs, opts, logger)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	reader := newReader(ledger, fs, segs, opts, logger)
	finalizer := newFinalizer(ledger, reader.onAckCommitted)
	reader.attachFinalizer(finalizer)

	if err := reader.seekToLastAcked(); err != nil {
		_ = writer.Close()
		_ = ledger.Close()
		return nil, err
	}

	return &Buffer{
		ledger:    ledger,
		segs:      segs,
		writer:    writer,
		reader:    reader,
		finalizer: finalizer,
		logger:    logger,
	}, nil
}

// Writer returns the buffer's single producer-side handle.
func (b *Buffer) Writer() *Writer { return b.writer }

// Reader returns the buffer's single consumer-side handle.
func (b *Buffer) Reader() *Reader { return b.reader }

// Stats reports the buffer's current size and progress.
func (b *Buffer) Stats() Stats { return b.reader.Stats() }

// Close flushes and closes the writer and reader concurrently (neither
// touches the other's state), then flushes and closes the ledger.
// It does not wait for outstanding Acks to resolve; callers that need
// a clean drain should stop writing, drain the reader to (nil, nil,
// nil), and resolve every outstanding Ack before calling Close.
func (b *Buffer) Close() error {
	var g errgroup.Group
	g.Go(b.writer.Close)
	g.Go(b.reader.Close)
	firstErr := g.Wait()

	if err := b.ledger.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.ledger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
