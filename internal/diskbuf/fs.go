// Package diskbuf implements a crash-safe, on-disk FIFO buffer between a
// single producer and a single consumer: a memory-mapped ledger tracks
// reader/writer progress across a ring of segment files, records are
// delivered in order with at-least-once semantics, and segments are
// unlinked only once every record in them has been acknowledged.
package diskbuf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// WritableFile is an append-only handle onto a segment file.
type WritableFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Len() (int64, error)
	Close() error
}

// ReadableFile is a sequential read handle onto a segment file.
type ReadableFile interface {
	Read(p []byte) (int, error)
	Close() error
}

// WritableMmap is a fixed-size file mapped read/write into memory.
type WritableMmap interface {
	Bytes() []byte
	Flush() error
	Close() error
}

// LockHandle represents an advisory exclusive lock held on a file.
type LockHandle interface {
	Unlock() error
}

// Filesystem is the capability set the buffer needs from local disk. It
// exists so tests can swap in an in-memory double without touching real
// files.
type Filesystem interface {
	MkdirAll(path string) error
	OpenWritable(path string) (WritableFile, error)
	OpenMmapWritable(path string, size int) (WritableMmap, bool, error)
	OpenReadable(path string) (ReadableFile, error)
	Remove(path string) error
	ReadDir(path string) ([]os.DirEntry, error)
	Stat(path string) (os.FileInfo, error)
	Truncate(path string, size int64) error
	LockExclusive(path string) (LockHandle, error)
}

// LocalFilesystem implements Filesystem against the host OS, using
// golang.org/x/sys/unix for the mmap and flock primitives the standard
// library doesn't expose.
type LocalFilesystem struct{}

// NewLocalFilesystem returns the default disk-backed Filesystem.
func NewLocalFilesystem() *LocalFilesystem { return &LocalFilesystem{} }

func (LocalFilesystem) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (LocalFilesystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

type osWritableFile struct{ f *os.File }

func (w *osWritableFile) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *osWritableFile) Sync() error                 { return w.f.Sync() }
func (w *osWritableFile) Close() error                { return w.f.Close() }
func (w *osWritableFile) Len() (int64, error) {
	info, err := w.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (LocalFilesystem) OpenWritable(path string) (WritableFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for append: %w", path, err)
	}
	return &osWritableFile{f: f}, nil
}

type osReadableFile struct{ f *os.File }

func (r *osReadableFile) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *osReadableFile) Close() error                { return r.f.Close() }

func (LocalFilesystem) OpenReadable(path string) (ReadableFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for read: %w", path, err)
	}
	return &osReadableFile{f: f}, nil
}

func (LocalFilesystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (LocalFilesystem) Truncate(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return nil
}

func (LocalFilesystem) ReadDir(path string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	return entries, nil
}

type mmapHandle struct {
	f    *os.File
	data []byte
}

func (m *mmapHandle) Bytes() []byte { return m.data }

func (m *mmapHandle) Flush() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}

func (m *mmapHandle) Close() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		_ = unix.Munmap(m.data)
		_ = m.f.Close()
		return fmt.Errorf("msync on close: %w", err)
	}
	if err := unix.Munmap(m.data); err != nil {
		_ = m.f.Close()
		return fmt.Errorf("munmap: %w", err)
	}
	return m.f.Close()
}

// OpenMmapWritable maps size bytes of path read/write, creating and
// zero-extending the file if it doesn't already exist. The returned bool
// reports whether the file was freshly created (so callers can decide to
// initialize its contents).
func (LocalFilesystem) OpenMmapWritable(path string, size int) (WritableMmap, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	created := info.Size() == 0
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, false, fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &mmapHandle{f: f, data: data}, created, nil
}

type flockHandle struct{ f *os.File }

func (h *flockHandle) Unlock() error {
	if err := unix.Flock(int(h.f.Fd()), unix.LOCK_UN); err != nil {
		_ = h.f.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return h.f.Close()
}

func (LocalFilesystem) LockExclusive(path string) (LockHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, newError(KindLockHeld, "lock %s", path).withCause(err)
	}
	return &flockHandle{f: f}, nil
}
