package protocol

import "hash/crc32"

// CRC32 computes the IEEE CRC32 of data, the checksum the bootloader
// reports for object contents.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// UpdateCRC32 continues a CRC32 computation as if data immediately
// followed the bytes that produced seed. A zero seed is the empty prefix,
// so UpdateCRC32(CRC32(a), b) == CRC32(append(a, b...)).
func UpdateCRC32(seed uint32, data []byte) uint32 {
	return crc32.Update(seed, crc32.IEEETable, data)
}
