package bloom

import "encoding/binary"

func readU64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
