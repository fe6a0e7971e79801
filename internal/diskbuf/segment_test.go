package diskbuf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNextFileIDWrapsAtRingBoundary(t *testing.T) {
	if got := nextFileID(MaxFileID - 1); got != 0 {
		t.Errorf("expected wrap to 0, got %d", got)
	}
	if got := nextFileID(5); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}

func TestRingDistanceHandlesWraparound(t *testing.T) {
	if got := ringDistance(MaxFileID-1, 1); got != 2 {
		t.Errorf("expected distance 2 across wraparound, got %d", got)
	}
	if got := ringDistance(10, 10); got != 0 {
		t.Errorf("expected distance 0, got %d", got)
	}
}

func TestSegmentManagerListAndTotalBytes(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFilesystem()
	segs := newSegmentManager(fs, dir)

	for _, id := range []uint16{0, 1, 5} {
		if err := os.WriteFile(segmentPath(dir, id), []byte("0123456789"), 0o644); err != nil {
			t.Fatalf("write segment %d: %v", id, err)
		}
	}
	// A file that doesn't match the segment naming convention should be
	// ignored by listFileIDs.
	if err := os.WriteFile(filepath.Join(dir, "buffer.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	ids, err := segs.listFileIDs()
	if err != nil {
		t.Fatalf("listFileIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 1 || ids[2] != 5 {
		t.Errorf("unexpected ids: %v", ids)
	}

	total, err := segs.totalBytes()
	if err != nil {
		t.Fatalf("totalBytes: %v", err)
	}
	if total != 30 {
		t.Errorf("expected total 30, got %d", total)
	}

	if err := segs.unlink(1); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	ids, err = segs.listFileIDs()
	if err != nil {
		t.Fatalf("listFileIDs after unlink: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids after unlink, got %v", ids)
	}
}
