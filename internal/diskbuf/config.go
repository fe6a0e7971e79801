package diskbuf

import "time"

// WhenFull selects what the writer does once the configured byte
// budget is exhausted.
type WhenFull int

const (
	// WhenFullBlock makes Write wait (honoring ctx) until the reader
	// frees space. The default, and the only mode that preserves
	// at-least-once delivery for every record a caller successfully
	// wrote.
	WhenFullBlock WhenFull = iota
	// WhenFullDropNewest makes Write return ErrBufferFull immediately
	// instead of blocking, leaving the caller to decide whether to
	// retry, drop, or reroute the record.
	WhenFullDropNewest
)

// DefaultMaxSegmentSize matches the teacher stack's default rotation
// threshold; large enough to amortize framing overhead, small enough
// that crash recovery only ever has to rescan one segment's worth of
// data.
const DefaultMaxSegmentSize int64 = 64 * 1024 * 1024

// DefaultMaxBufferSize bounds the total on-disk size of all segment
// files before the writer applies backpressure. Bytes are released only
// when a fully-acknowledged segment is unlinked, not as records are read.
const DefaultMaxBufferSize int64 = 512 * 1024 * 1024

// DefaultFlushInterval is how often TrackWrite-driven syncs are
// coalesced when the caller isn't asking for sync-every-write.
const DefaultFlushInterval = 100 * time.Millisecond

// Options configures a buffer directory.
type Options struct {
	// DataDir is the directory the ledger and segment files live in.
	DataDir string

	// MaxBufferSize caps the total on-disk size of all segment files;
	// read records keep counting until their segment is unlinked.
	MaxBufferSize int64

	// MaxSegmentSize is the size at which the writer rotates onto a
	// new segment file.
	MaxSegmentSize int64

	// FlushInterval coalesces ledger/segment fsyncs; 0 means sync on
	// every write.
	FlushInterval time.Duration

	// WhenFull selects the writer's behavior once MaxBufferSize (or
	// the file-id ring) is exhausted.
	WhenFull WhenFull
}

// DefaultOptions returns the configuration a buffer uses if the caller
// doesn't override a field.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:        dataDir,
		MaxBufferSize:  DefaultMaxBufferSize,
		MaxSegmentSize: DefaultMaxSegmentSize,
		FlushInterval:  DefaultFlushInterval,
		WhenFull:       WhenFullBlock,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}
	if o.MaxSegmentSize <= 0 {
		o.MaxSegmentSize = DefaultMaxSegmentSize
	}
	return o
}
