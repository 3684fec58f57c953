package accountstore

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Key value stores keep a record of an 8 byte big endian revision counter
// followed by the encoded payload.
const recordCounterBytes = 8

func packRecord(counter uint64, data []byte) []byte {
	payload := encodePayload(data)
	rec := make([]byte, recordCounterBytes, recordCounterBytes+len(payload))
	binary.BigEndian.PutUint64(rec, counter)
	return append(rec, payload...)
}

func unpackRecord(rec []byte) (uint64, []byte, error) {
	if len(rec) < recordCounterBytes {
		return 0, nil, fmt.Errorf("%w: record of %d bytes", ErrCorruptRecord, len(rec))
	}
	data, err := decodePayload(rec[recordCounterBytes:])
	if err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint64(rec), data, nil
}

func counterVersion(counter uint64) Version {
	return Version(strconv.FormatUint(counter, 10))
}

// checkCounter fails with ErrVersionConflict unless expect names counter.
func checkCounter(counter uint64, expect Version) error {
	want, err := strconv.ParseUint(string(expect), 10, 64)
	if err != nil || want != counter {
		return fmt.Errorf("%w: have %d, expected %q", ErrVersionConflict, counter, expect)
	}
	return nil
}
