// Package hashchain provides the hash functions, order dependent hash chains
// and public input compression used by batched trees.
//
// Every value committed to by a chain is a 32 byte big endian word. With the
// default Poseidon hasher each word must be a canonical BN254 scalar field
// element.
package hashchain
