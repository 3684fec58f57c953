package bloom

/*

# In-place Bloom filters for batched queues

Each batch of an input queue owns one Bloom filter. The filter is a plain
bitset living inside the queue account bytes; there is no header; the bit
count (capacity) and the number of probes (iterations) are stored with the
batch that owns the bitset and passed in by the caller.

	+----------------------+  capacity/8 bytes
	| bitset               |
	+----------------------+

## What Bloom filters are (and are not)

- If the filter says "definitely not present", then the element is not present.
- If the filter says "maybe present", then the element may or may not be
  present (false positives are possible).

A value inserted into a filter is never reported absent by that filter until
the filter is cleared. The batched queue relies on exactly that property and
nothing stronger.

## Indexing and bit numbering

Indices are derived by double hashing:

	h1, h2 = BLAKE3( 0xB0 || elem )[0:8], [8:16]
	j_i    = (h1 + i*h2) mod capacity,  i in [0, iterations)

Bit j lives in byte j>>3, at bit position j&7 counted from the least
significant bit (LSB0).

## API versioning

Functions carry a V1 suffix. The suffix pins the index derivation and bit
numbering above so that filters persisted in accounts keep answering the same
way if a different scheme is introduced later as V2.

*/
