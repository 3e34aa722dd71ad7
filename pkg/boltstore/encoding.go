package boltstore

import (
	"bytes"
	"encoding/gob"
	"time"
)

// record is the stored form of one statistic.
type record struct {
	Value   string
	Updated time.Time
}

func init() {
	gob.Register(record{})
}

// encodeRecord serializes a record to bytes using gob.
func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecord deserializes bytes back into a record.
func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
