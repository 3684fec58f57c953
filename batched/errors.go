package batched

import "errors"

var (
	ErrSizeMismatch       = errors.New("batched: account size does not match parameters")
	ErrBadDiscriminator   = errors.New("batched: account discriminator invalid")
	ErrInvalidParams      = errors.New("batched: invalid account parameters")
	ErrInvalidTreeType    = errors.New("batched: operation not supported by tree type")
	ErrInvalidQueueType   = errors.New("batched: operation not supported by queue type")
	ErrInvalidInstruction = errors.New("batched: malformed instruction data")

	// ErrBatchNotFilling is returned when inserting into a batch that is
	// waiting for its proof.
	ErrBatchNotFilling = errors.New("batched: batch is not accepting inserts")
	// ErrBatchNotReady is returned when no full batch is waiting to be
	// applied.
	ErrBatchNotReady = errors.New("batched: batch not ready to update tree")
	// ErrBatchAlreadyInserted is returned when the next batch in fill order
	// has already been applied.
	ErrBatchAlreadyInserted = errors.New("batched: batch already inserted")

	ErrNonInclusionCheckFailed     = errors.New("batched: value may already be queued")
	ErrInclusionProofByIndexFailed = errors.New("batched: value at leaf index does not match")

	ErrProofVerificationFailed = errors.New("batched: proof verification failed")
	ErrCircuitMismatch         = errors.New("batched: circuit does not match queue")
	ErrStaleRootIndex          = errors.New("batched: root index is not the current root")
	ErrTreeIsFull              = errors.New("batched: tree is full")
	ErrQueueNotAssociated      = errors.New("batched: tree and queue are not associated")
	ErrHasherMismatch          = errors.New("batched: tree and queue use different hashers")

	// ErrAppendPending is returned when the tree records an append the
	// output queue has not caught up with. CompleteAppend resolves it.
	ErrAppendPending = errors.New("batched: output queue has not recorded the last append")
	// ErrAppendOutOfOrder is returned when the batch a tree records as
	// appended is not the queue's next full batch.
	ErrAppendOutOfOrder = errors.New("batched: appended batch is not the next full batch")
)
