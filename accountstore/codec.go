package accountstore

import (
	"fmt"

	"github.com/golang/snappy"
)

// Stored payloads carry a one byte codec tag. Account buffers are mostly
// zero bloom filter bits and compress well.
const (
	codecRaw    byte = 0
	codecSnappy byte = 1
)

func encodePayload(data []byte) []byte {
	out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
	out[0] = codecSnappy
	return append(out, snappy.Encode(nil, data)...)
}

func decodePayload(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptRecord)
	}
	switch b[0] {
	case codecRaw:
		return append([]byte(nil), b[1:]...), nil
	case codecSnappy:
		data, err := snappy.Decode(nil, b[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, b[0])
}
