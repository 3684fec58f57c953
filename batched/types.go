package batched

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

const (
	// HashBytes is the width of values, roots and hash chains.
	HashBytes = 32

	DiscriminatorBytes = 8

	TreeDiscriminator  = "BatchMka"
	QueueDiscriminator = "queueacc"
)

type TreeType uint64

const (
	TreeTypeState   TreeType = 1
	TreeTypeAddress TreeType = 2
)

func (t TreeType) String() string {
	switch t {
	case TreeTypeState:
		return "state"
	case TreeTypeAddress:
		return "address"
	}
	return fmt.Sprintf("tree(%d)", uint64(t))
}

// InputQueueType is the queue type embedded in a tree of this type.
func (t TreeType) InputQueueType() (QueueType, error) {
	switch t {
	case TreeTypeState:
		return QueueTypeInput, nil
	case TreeTypeAddress:
		return QueueTypeAddress, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidTreeType, t)
}

type QueueType uint64

const (
	QueueTypeInput   QueueType = 3
	QueueTypeAddress QueueType = 4
	QueueTypeOutput  QueueType = 5
)

func (q QueueType) String() string {
	switch q {
	case QueueTypeInput:
		return "input"
	case QueueTypeAddress:
		return "address"
	case QueueTypeOutput:
		return "output"
	}
	return fmt.Sprintf("queue(%d)", uint64(q))
}

// HasBloomFilters is true for the queues that track membership.
func (q QueueType) HasBloomFilters() bool {
	return q == QueueTypeInput || q == QueueTypeAddress
}

// HasValues is true for the queues that store the values themselves.
func (q QueueType) HasValues() bool {
	return q == QueueTypeOutput
}

// BatchState uses the persisted encoding Fill=0, Inserted=1, Full=2.
type BatchState uint64

const (
	BatchStateFill     BatchState = 0
	BatchStateInserted BatchState = 1
	BatchStateFull     BatchState = 2
)

func (s BatchState) String() string {
	switch s {
	case BatchStateFill:
		return "fill"
	case BatchStateInserted:
		return "inserted"
	case BatchStateFull:
		return "full"
	}
	return fmt.Sprintf("state(%d)", uint64(s))
}

// AccountID identifies a tree or queue account. It plays the role of an
// account address when a tree records its output queue and vice versa.
type AccountID [32]byte

// NewAccountID returns a random id.
func NewAccountID() AccountID {
	var id AccountID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

func (id AccountID) IsZero() bool { return id == AccountID{} }

func (id AccountID) String() string { return hexutil.Encode(id[:]) }

// ParseAccountID parses the 0x prefixed hex form produced by String.
func ParseAccountID(s string) (AccountID, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return AccountID{}, err
	}
	if len(b) != len(AccountID{}) {
		return AccountID{}, fmt.Errorf("%w: account id must be 32 bytes, got %d", ErrInvalidParams, len(b))
	}
	var id AccountID
	copy(id[:], b)
	return id, nil
}
