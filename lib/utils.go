package lib

// seqIncrement advances a sequence counter with uint32 wraparound.
func seqIncrement(seq uint32) uint32 {
	return uint32(uint64(seq) + 1) // implicit modulo operation included
}
