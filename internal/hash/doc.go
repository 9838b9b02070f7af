// Package hash provides hardware-accelerated checksum utilities.
//
// All persisted structures in Colibri are protected by CRC32-Castagnoli
// (CRC32C), the same polynomial used by iSCSI, RocksDB and LevelDB. Go's
// crc32 package selects hardware instructions automatically when present.
//
// One-shot:
//
//	checksum := hash.CRC32C(data)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk)
//	checksum := h.Sum32()
package hash
