// Package format houses the low-level binary layout of the write-ahead
// journal. The goal is to keep the encoding focused, allocation-free where
// possible, and independent from the public API so higher-level packages can
// orchestrate the data in a more ergonomic form.
package format

var (
	// JournalSignature is the four-byte signature at the start of every
	// journal file.
	// Layout (little-endian):
	//   0x00  's' 'j' 'n' 'l'
	JournalSignature = []byte{'s', 'j', 'n', 'l'}

	// RecordSignature is the two-byte signature at the beginning of each
	// journal record header.
	RecordSignature = []byte{'j', 'r'}
)

// Journal file header layout. The file header occupies one full block so that
// record offsets are block-aligned.
const (
	FileSignatureOffset = 0x00 // 4 bytes: JournalSignature
	FileVersionOffset   = 0x04 // 2 bytes: format version
	FileBlockSizeOffset = 0x08 // 4 bytes: block size in bytes
	FileTailSeqOffset   = 0x10 // 8 bytes: oldest retained sequence
	FileHeaderSize      = 64
)

// FormatVersion is the current journal format version.
const FormatVersion = 1

// Record header layout. Every record starts with a fixed 64-byte header,
// followed by PayloadLen bytes of payload, padded to 8-byte alignment.
const (
	RecSignatureOffset = 0x00 // 2 bytes: RecordSignature
	RecTypeOffset      = 0x02 // 1 byte: record type
	RecLayerOffset     = 0x03 // 1 byte: layer mask
	RecOpTypeOffset    = 0x04 // 2 bytes: operation type
	RecFlagsOffset     = 0x06 // 2 bytes: record flags
	RecSeqOffset       = 0x08 // 8 bytes: sequence number
	RecTxnIDOffset     = 0x10 // 8 bytes: owning transaction id
	RecPrereqOffset    = 0x18 // 8 bytes: prerequisite sequence (0 = none)
	RecTimestampOffset = 0x20 // 8 bytes: unix nanoseconds
	RecPayloadLenOffset = 0x28 // 4 bytes: payload length
	RecChecksumOffset  = 0x2C // 4 bytes: CRC32 over header (checksum zeroed) + payload
	RecordHeaderSize   = 64
)

// RecordAlignmentMask is used to round record sizes up to 8 bytes so that
// headers never straddle an odd boundary.
const RecordAlignmentMask = 7

// AlignRecord returns n aligned up to the next 8-byte boundary.
func AlignRecord(n int) int {
	return (n + RecordAlignmentMask) & ^RecordAlignmentMask
}
