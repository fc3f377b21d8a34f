package format

import "hash/crc32"

// Castagnoli is used for all journal checksums. Hardware-accelerated on
// amd64/arm64, and distinct from the IEEE polynomial so a journal block is
// never mistaken for a generic CRC32-protected blob.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32-C of b.
func Checksum(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}

// ChecksumRecord computes the record checksum: the CRC32-C of the header with
// the checksum field zeroed, chained with the payload bytes.
func ChecksumRecord(header, payload []byte) uint32 {
	var scratch [RecordHeaderSize]byte
	copy(scratch[:], header[:RecordHeaderSize])
	PutU32(scratch[:], RecChecksumOffset, 0)
	sum := crc32.Checksum(scratch[:], castagnoli)
	return crc32.Update(sum, castagnoli, payload)
}
