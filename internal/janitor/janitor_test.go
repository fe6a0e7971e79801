package janitor

import (
	"context"
	"testing"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	"github.com/dsjohal14/ledgerbuf/internal/usage"
	"github.com/rs/zerolog"
)

func TestSweepNowRecordsSnapshot(t *testing.T) {
	opts := diskbuf.DefaultOptions(t.TempDir())
	buf, err := diskbuf.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer buf.Close()

	ctx := context.Background()
	if _, err := buf.Writer().Write(ctx, []byte("hello"), 1); err != nil {
		t.Fatalf("Write: %v", err)
	}

	recorder := usage.NewInMemoryRecorder()
	j := New(buf, recorder, Config{}, zerolog.Nop())

	j.SweepNow(ctx)

	snaps, err := recorder.RecentSnapshots(ctx, 1)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].TotalRecords == 0 {
		t.Errorf("expected non-zero total records after a write")
	}
}

func TestSecondStartFailsAndStopIsIdempotent(t *testing.T) {
	opts := diskbuf.DefaultOptions(t.TempDir())
	buf, err := diskbuf.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer buf.Close()

	j := New(buf, nil, Config{}, zerolog.Nop())
	ctx := context.Background()

	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Start(ctx); err == nil {
		t.Error("expected second Start to fail while already running")
	}
	j.Stop()
	j.Stop() // must not panic or block
}
