package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodingRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	PutU16(b, 0, 0xBEEF)
	PutU32(b, 2, 0xDEADBEEF)
	PutU64(b, 8, 0x0123456789ABCDEF)

	assert.EqualValues(t, 0xBEEF, ReadU16(b, 0))
	assert.EqualValues(t, 0xDEADBEEF, ReadU32(b, 2))
	assert.EqualValues(t, 0x0123456789ABCDEF, ReadU64(b, 8))
	// Little-endian on the wire.
	assert.Equal(t, byte(0xEF), b[0])
	assert.Equal(t, byte(0xBE), b[1])
}

func TestAlignRecord(t *testing.T) {
	assert.Equal(t, 0, AlignRecord(0))
	assert.Equal(t, 8, AlignRecord(1))
	assert.Equal(t, 8, AlignRecord(8))
	assert.Equal(t, 16, AlignRecord(9))
	assert.Equal(t, 72, AlignRecord(RecordHeaderSize+5))
}

func TestChecksumRecordIgnoresChecksumField(t *testing.T) {
	header := make([]byte, RecordHeaderSize)
	copy(header, RecordSignature)
	payload := []byte("payload")

	sum := ChecksumRecord(header, payload)
	PutU32(header, RecChecksumOffset, sum)
	// Storing the checksum in its own field does not change the computation.
	assert.Equal(t, sum, ChecksumRecord(header, payload))

	// Any other header byte does.
	header[RecTypeOffset] ^= 1
	assert.NotEqual(t, sum, ChecksumRecord(header, payload))
	header[RecTypeOffset] ^= 1
	assert.NotEqual(t, sum, ChecksumRecord(header, []byte("Payload")))
}

func TestChecksumDistinctFromIEEE(t *testing.T) {
	// Castagnoli polynomial, not IEEE: the well-known CRC32("123456789")
	// IEEE value is 0xCBF43926; CRC32-C is 0xE3069283.
	assert.EqualValues(t, 0xE3069283, Checksum([]byte("123456789")))
}
