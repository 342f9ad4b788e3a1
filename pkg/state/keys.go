package state

import "encoding/binary"

// Key layouts are fixed: numeric prefixes are 8-byte big-endian so that
// lexicographic key order matches numeric order and prefix scans over a batch
// index or version behave.

// EncodeVersion encodes a version as its 8-byte big-endian key form.
func EncodeVersion(version uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	return buf[:]
}

// DecodeVersion decodes an 8-byte big-endian version value.
func DecodeVersion(b []byte) uint64 {
	return binary.BigEndian.Uint64(b[:8])
}

// DataKey builds the data-space key: version || resource id.
func DataKey(version uint64, idBytes []byte) []byte {
	key := make([]byte, 0, 8+len(idBytes))
	key = append(key, EncodeVersion(version)...)
	return append(key, idBytes...)
}

// RollbackKey builds the rollback-ptr key: batch index || resource id.
func RollbackKey(batchIndex uint64, idBytes []byte) []byte {
	key := make([]byte, 0, 8+len(idBytes))
	key = append(key, EncodeVersion(batchIndex)...)
	return append(key, idBytes...)
}

// SplitPrefixedKey splits an 8-byte-prefixed key into its numeric prefix and
// the trailing resource id bytes.
func SplitPrefixedKey(key []byte) (prefix uint64, idBytes []byte) {
	return binary.BigEndian.Uint64(key[:8]), key[8:]
}
