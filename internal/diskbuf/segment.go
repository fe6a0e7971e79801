package diskbuf

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// MaxFileID bounds the segment file-id ring. Ids wrap modulo this value
// instead of growing without bound, so a long-lived buffer never runs
// out of representable file names.
const MaxFileID = 1 << 15 // 32768

func segmentFilename(fileID uint16) string {
	return fmt.Sprintf("buffer-data-%d.dat", fileID)
}

func segmentPath(dir string, fileID uint16) string {
	return filepath.Join(dir, segmentFilename(fileID))
}

// nextFileID advances fileID by one position around the ring.
func nextFileID(fileID uint16) uint16 {
	return uint16((uint32(fileID) + 1) % MaxFileID)
}

// ringDistance returns how many rotations `to` is ahead of `from` on the
// modular ring, so callers can compare file ids without being fooled by
// wraparound the way a raw `<` comparison would be.
func ringDistance(from, to uint16) uint16 {
	return uint16((uint32(to) - uint32(from) + MaxFileID) % MaxFileID)
}

// segmentManager maps logical file-ids to paths and performs the file
// lifecycle operations (create-on-rotate, unlink-on-ack) over the C1
// Filesystem abstraction.
type segmentManager struct {
	fs  Filesystem
	dir string
}

func newSegmentManager(fs Filesystem, dir string) *segmentManager {
	return &segmentManager{fs: fs, dir: dir}
}

func (m *segmentManager) path(fileID uint16) string {
	return segmentPath(m.dir, fileID)
}

func (m *segmentManager) unlink(fileID uint16) error {
	if err := m.fs.Remove(m.path(fileID)); err != nil {
		return newError(KindSegmentIO, "unlink segment %d", fileID).withCause(err)
	}
	return nil
}

// listFileIDs returns every buffer-data-<id>.dat file currently present,
// sorted by raw numeric id. This raw order is only meaningful for sizing
// and orphan sweeps; FIFO delivery order is governed by the ledger's
// reader/writer cursors, not by this listing.
func (m *segmentManager) listFileIDs() ([]uint16, error) {
	entries, err := m.fs.ReadDir(m.dir)
	if err != nil {
		return nil, newError(KindSegmentIO, "list segments in %s", m.dir).withCause(err)
	}

	var ids []uint16
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "buffer-data-") || !strings.HasSuffix(name, ".dat") {
			continue
		}
		var id uint16
		if _, err := fmt.Sscanf(name, "buffer-data-%d.dat", &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// totalBytes sums the on-disk size of every segment file, used to
// reconstruct the ledger's in-memory byte budget after an open/recover.
func (m *segmentManager) totalBytes() (int64, error) {
	ids, err := m.listFileIDs()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, id := range ids {
		info, err := m.fs.Stat(m.path(id))
		if err != nil {
			return 0, newError(KindSegmentIO, "stat segment %d", id).withCause(err)
		}
		total += info.Size()
	}
	return total, nil
}
