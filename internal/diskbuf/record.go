package diskbuf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Record on-disk format (32-byte header + payload + trailing CRC):
//
//	Magic (4B)  │ Flags (1B) │ Reserved (3B)
//	FirstRecordID (8B, uint64)
//	EventCount (8B, uint64)
//	PayloadLen (4B, uint32)
//	HeaderCRC32 (4B) - checksum of bytes [0:28]
//	Payload (variable)
//	PayloadCRC32 (4B) - checksum of Payload
const (
	// recordMagic identifies a valid record header.
	recordMagic uint32 = 0x52425546 // "RBUF"

	// HeaderSize is the fixed size of a record header.
	HeaderSize = 32

	// MaxPayloadSize bounds a single record's payload (16MB).
	MaxPayloadSize = 16 * 1024 * 1024
)

// Record is one framed entry in a segment file: an opaque payload
// tagged with the record id assigned to its first event and the number
// of logical events it carries.
type Record struct {
	FirstRecordID uint64
	EventCount    uint64
	Payload       []byte
}

// NewRecord validates payload size and event count before framing.
func NewRecord(firstRecordID, eventCount uint64, payload []byte) (*Record, error) {
	if len(payload) > MaxPayloadSize {
		return nil, newError(KindRecordTooLarge, "payload %d bytes exceeds max %d", len(payload), MaxPayloadSize)
	}
	if eventCount == 0 {
		return nil, newError(KindFramingError, "event count must be >= 1")
	}
	return &Record{FirstRecordID: firstRecordID, EventCount: eventCount, Payload: payload}, nil
}

func headerCRC(firstRecordID, eventCount uint64, payloadLen uint32) uint32 {
	buf := make([]byte, HeaderSize-4)
	binary.LittleEndian.PutUint32(buf[0:4], recordMagic)
	buf[4] = 0
	binary.LittleEndian.PutUint64(buf[8:16], firstRecordID)
	binary.LittleEndian.PutUint64(buf[16:24], eventCount)
	binary.LittleEndian.PutUint32(buf[24:28], payloadLen)
	return crc32.ChecksumIEEE(buf)
}

// Encode serializes the record into its on-disk frame.
func (r *Record) Encode() []byte {
	payloadLen := uint32(len(r.Payload))
	buf := make([]byte, HeaderSize+len(r.Payload)+4)

	binary.LittleEndian.PutUint32(buf[0:4], recordMagic)
	buf[4] = 0
	binary.LittleEndian.PutUint64(buf[8:16], r.FirstRecordID)
	binary.LittleEndian.PutUint64(buf[16:24], r.EventCount)
	binary.LittleEndian.PutUint32(buf[24:28], payloadLen)
	binary.LittleEndian.PutUint32(buf[HeaderSize-4:HeaderSize], headerCRC(r.FirstRecordID, r.EventCount, payloadLen))

	copy(buf[HeaderSize:], r.Payload)
	binary.LittleEndian.PutUint32(buf[HeaderSize+len(r.Payload):], crc32.ChecksumIEEE(r.Payload))

	return buf
}

// TotalSize is the on-disk byte length of the encoded record.
func (r *Record) TotalSize() int {
	return HeaderSize + len(r.Payload) + 4
}

// RecordReader decodes records sequentially from a segment file, in the
// same frame-at-a-time style as the teacher's segment iterator, but over
// the generic opaque-payload frame instead of a document-typed one.
type RecordReader struct {
	src    io.Reader
	offset int64
	err    error
}

// NewRecordReader wraps r for framed reads, buffering at the OS-read
// granularity the way the rest of this codebase buffers segment reads.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{src: bufio.NewReaderSize(r, 64*1024)}
}

// Offset returns the number of bytes consumed so far.
func (rr *RecordReader) Offset() int64 { return rr.offset }

// Err returns the error that stopped iteration, if any. io.EOF on a
// frame boundary is not an error; it is reported as (nil, nil).
func (rr *RecordReader) Err() error { return rr.err }

// Next reads and validates the next record frame. It returns
// (nil, nil) at a clean end-of-file, (rec, nil) on success, and
// (nil, err) if a partial or corrupt frame was found in the middle of
// the file; see Err for the same error after the fact.
func (rr *RecordReader) Next() (*Record, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(rr.src, header)
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, nil
		}
		rr.err = newError(KindFailedToDeserialize, "short header at offset %d", rr.offset).withCause(err)
		return nil, rr.err
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != recordMagic {
		rr.err = newError(KindFramingError, "bad magic at offset %d: 0x%x", rr.offset, magic)
		return nil, rr.err
	}
	firstRecordID := binary.LittleEndian.Uint64(header[8:16])
	eventCount := binary.LittleEndian.Uint64(header[16:24])
	payloadLen := binary.LittleEndian.Uint32(header[24:28])
	gotHeaderCRC := binary.LittleEndian.Uint32(header[HeaderSize-4 : HeaderSize])

	if payloadLen > MaxPayloadSize {
		rr.err = newError(KindFramingError, "payload length %d exceeds max at offset %d", payloadLen, rr.offset)
		return nil, rr.err
	}
	if want := headerCRC(firstRecordID, eventCount, payloadLen); want != gotHeaderCRC {
		rr.err = newError(KindFailedToDeserialize, "header CRC mismatch at offset %d: want 0x%x got 0x%x", rr.offset, want, gotHeaderCRC)
		return nil, rr.err
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(rr.src, payload); err != nil {
			rr.err = newError(KindFailedToDeserialize, "short payload at offset %d", rr.offset).withCause(err)
			return nil, rr.err
		}
	}

	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(rr.src, crcBuf); err != nil {
		rr.err = newError(KindFailedToDeserialize, "short payload CRC at offset %d", rr.offset).withCause(err)
		return nil, rr.err
	}
	gotPayloadCRC := binary.LittleEndian.Uint32(crcBuf)
	if want := crc32.ChecksumIEEE(payload); want != gotPayloadCRC {
		rr.err = newError(KindFailedToDeserialize, "payload CRC mismatch at offset %d: want 0x%x got 0x%x", rr.offset, want, gotPayloadCRC)
		return nil, rr.err
	}

	rec := &Record{FirstRecordID: firstRecordID, EventCount: eventCount, Payload: payload}
	rr.offset += int64(HeaderSize) + int64(payloadLen) + 4
	return rec, nil
}

// findLastValidFrame scans a segment from the start and returns the
// byte offset immediately after the last well-framed record, so a
// writer reopening a segment after a crash can truncate a torn tail
// the same way it would truncate a torn WAL tail.
func findLastValidFrame(r io.Reader) int64 {
	rr := NewRecordReader(r)
	var lastGood int64
	for {
		_, err := rr.Next()
		if err != nil {
			break
		}
		if rr.offset == lastGood {
			break
		}
		lastGood = rr.offset
	}
	return lastGood
}
