package protocol

import "hash/crc32"

// Checksum returns the CRC-32 (IEEE) of frame without its leading protocol tag.
// frame must not include the trailing checksum token.
func Checksum(frame []byte) uint32 {
	if len(frame) < len(Tag) {
		return crc32.ChecksumIEEE(nil)
	}
	return crc32.ChecksumIEEE(frame[len(Tag):])
}
