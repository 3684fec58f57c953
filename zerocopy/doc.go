package zerocopy

/*

# Fixed-capacity views over caller owned bytes

This package provides the layout primitives used by the batched tree and queue
accounts. A view never owns memory. It is a window onto a range of a larger
buffer and every mutation writes straight through to that buffer, so the
buffer alone is the persisted state.

Composite structures are laid out sequentially with an offset cursor:

	offset := 0
	roots, err := InitCyclicVec(buf, &offset, 8, 32)
	values, err := InitBoundedVec(buf, &offset, 16, 32)

Each Init call claims header + capacity*elemSize bytes at offset and advances
the cursor. Reopening the same buffer later uses the FromBytes counterparts in
the same order.

## Layouts

All header words are big endian uint64.

	BoundedVec  | len | cap |             | cap * elem |
	CyclicVec   | len | cap | last index  | cap * elem |
	Slice       | len |                   | len * elem |

Element accessors return sub slices of the backing buffer. Callers must copy
if they need a value to outlive a later mutation of the same slot.

Views over overlapping ranges are never created by the functions here. The
account types that use them open every view exactly once per call.

*/
