package boltstore

import (
	"encoding/binary"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketStats   = []byte("stats")   // player -> nested bucket of stat key -> record
	bucketPlayers = []byte("players") // player -> display name as first written
)

// Meta key constants.
var (
	keyVersion = []byte("version")
)

// schemaVersion is bumped whenever the bucket layout changes.
const schemaVersion = 1

// playerKey converts a player identity into its bucket key.
func playerKey(normalized string) []byte {
	return []byte(normalized)
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(b))
}
