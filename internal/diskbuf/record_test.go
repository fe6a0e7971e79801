package diskbuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec, err := NewRecord(42, 3, []byte("hello world"))
	require.NoError(t, err)

	data := rec.Encode()
	rr := NewRecordReader(bytes.NewReader(data))

	got, err := rr.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.FirstRecordID)
	require.Equal(t, uint64(3), got.EventCount)
	require.Equal(t, "hello world", string(got.Payload))

	// A second read hits clean EOF.
	end, err := rr.Next()
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestNewRecordRejectsZeroEventCount(t *testing.T) {
	_, err := NewRecord(1, 0, []byte("x"))
	require.Error(t, err)
	require.True(t, IsKind(err, KindFramingError))
}

func TestNewRecordRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxPayloadSize+1)
	_, err := NewRecord(1, 1, big)
	require.Error(t, err)
	require.True(t, IsKind(err, KindRecordTooLarge))
}

func TestRecordReaderDetectsCorruptHeader(t *testing.T) {
	rec, err := NewRecord(1, 1, []byte("data"))
	require.NoError(t, err)
	data := rec.Encode()
	data[0] ^= 0xff // corrupt the magic

	rr := NewRecordReader(bytes.NewReader(data))
	_, err = rr.Next()
	require.Error(t, err)
	require.True(t, IsKind(err, KindFramingError))
}

func TestRecordReaderDetectsCorruptPayload(t *testing.T) {
	rec, err := NewRecord(1, 1, []byte("data"))
	require.NoError(t, err)
	data := rec.Encode()
	data[HeaderSize] ^= 0xff // corrupt a payload byte, leaving the header CRC valid

	rr := NewRecordReader(bytes.NewReader(data))
	_, err = rr.Next()
	require.Error(t, err)
	require.True(t, IsKind(err, KindFailedToDeserialize))
}

func TestFindLastValidFrameStopsAtTornTail(t *testing.T) {
	rec1, _ := NewRecord(1, 1, []byte("one"))
	rec2, _ := NewRecord(2, 1, []byte("two"))

	var buf bytes.Buffer
	buf.Write(rec1.Encode())
	validOffset := buf.Len()
	full := rec2.Encode()
	buf.Write(full[:len(full)-3]) // torn: truncated mid-frame

	got := findLastValidFrame(bytes.NewReader(buf.Bytes()))
	require.Equal(t, int64(validOffset), got)
}

func TestFindLastValidFrameAllValid(t *testing.T) {
	rec1, _ := NewRecord(1, 1, []byte("one"))
	rec2, _ := NewRecord(2, 1, []byte("two"))

	var buf bytes.Buffer
	buf.Write(rec1.Encode())
	buf.Write(rec2.Encode())

	got := findLastValidFrame(bytes.NewReader(buf.Bytes()))
	require.Equal(t, int64(buf.Len()), got)
}
