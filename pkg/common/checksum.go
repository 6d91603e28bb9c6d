package common

import "hash/crc32"

// CRC32 computes the reflected IEEE 802.3 CRC-32 of data (polynomial
// 0xEDB88320, initial value 0xFFFFFFFF, final value complemented).
//
// Guard frames carry this value over the header (checksum field zeroed)
// followed by the payload. It detects corruption only; it is not a MAC.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, crc32.IEEETable)
}

// CRC32Parts computes the CRC-32 of the concatenation of parts without
// copying them into one buffer.
func CRC32Parts(parts ...[]byte) uint32 {
	var crc uint32
	for _, p := range parts {
		crc = crc32.Update(crc, crc32.IEEETable, p)
	}
	return crc
}
