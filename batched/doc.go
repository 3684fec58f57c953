package batched

/*

# Batched Merkle tree accounts

A batched tree does not insert leaves one by one. Values are collected in the
batches of a queue and a whole batch is applied to the tree at once, after an
externally produced proof for that batch has been verified.

Two account kinds exist. Both are fixed size byte buffers laid out once by an
Init function and reopened without copying by a FromBytes function.

	Tree account
	+---------------------------+  TreeHeaderBytes
	| discriminator "BatchMka"  |
	| tree type, id, queue id   |
	| height, root capacity     |
	| sequence, next index      |
	| input queue metadata      |
	+---------------------------+
	| root history (cyclic)     |
	+---------------------------+
	| queue region              |
	+---------------------------+

	Queue account
	+---------------------------+  QueueHeaderBytes
	| discriminator "queueacc"  |
	| id, tree id               |
	| queue metadata            |
	+---------------------------+
	| queue region              |
	+---------------------------+

	Queue region
	+---------------------------+
	| batch records (slice)     |  one BatchRecordBytes record per batch
	+---------------------------+
	| bloom bitset per batch    |  capacity/8 bytes each (empty for output)
	+---------------------------+
	| value vec per batch       |  output queues only
	+---------------------------+

## Batch lifecycle

	Fill --(batch_size values)--> Full --(proof applied)--> Inserted
	  ^                                                        |
	  +-----------------(next insert into the slot)------------+

The queue rotates its current batch as soon as the current batch is full.
Inserting into a current batch that is still Full (its proof has not been
applied) fails with ErrBatchNotFilling, so a slot is never refilled before
its previous contents reached the tree. Batches are applied strictly in the
order they were filled.

## Atomicity

Every mutating method validates all of its preconditions before writing any
byte of the account. A returned error therefore always means the buffer is
unchanged.

*/
