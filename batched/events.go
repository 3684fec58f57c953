package batched

import "fmt"

type BatchEventKind uint8

const (
	BatchEventAppend BatchEventKind = iota + 1
	BatchEventNullify
	BatchEventAddressAppend
)

func (k BatchEventKind) String() string {
	switch k {
	case BatchEventAppend:
		return "append"
	case BatchEventNullify:
		return "nullify"
	case BatchEventAddressAppend:
		return "address-append"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// BatchEvent records one applied batch. It is returned by a successful
// update and is the only output of the call besides the account bytes.
type BatchEvent struct {
	Kind    BatchEventKind
	TreeID  AccountID
	QueueID AccountID

	BatchIndex int
	BatchSize  uint64

	OldNextIndex uint64
	NewNextIndex uint64

	NewRoot        [32]byte
	RootIndex      uint64
	SequenceNumber uint64
}
