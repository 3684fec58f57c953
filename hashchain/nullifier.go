package hashchain

// Nullifier derives the value recorded when the leaf at leafIndex, holding
// accountHash, is spent by the transaction txHash.
func Nullifier(h Hasher, accountHash [32]byte, leafIndex uint64, txHash [32]byte) ([32]byte, error) {
	return h.Hash(accountHash, IndexWord(leafIndex), txHash)
}
