package prxw

import (
	"fmt"
	"math/bits"

	"github.com/klauspost/reedsolomon"
)

// fecScheme holds the transmission group geometry.
//
// Parity packets are currently rejected on admission,
// so no Reed-Solomon codec is kept;
// building one only validates the group and parity counts.
type fecScheme struct {
	groupSize int
	shift     uint
}

func newFECScheme(groupSize, nParity int) (*fecScheme, error) {
	if groupSize&(groupSize-1) != 0 {
		return nil, fmt.Errorf(
			"transmission group size must be a power of two (got %d)", groupSize,
		)
	}
	if nParity <= 0 {
		return nil, fmt.Errorf(
			"parity count must be positive with transmission group size %d (got %d)",
			groupSize, nParity,
		)
	}

	if _, err := reedsolomon.New(groupSize, nParity); err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon codec for %d+%d shards: %w",
			groupSize, nParity, err,
		)
	}

	return &fecScheme{
		groupSize: groupSize,
		shift:     uint(bits.TrailingZeros(uint(groupSize))),
	}, nil
}
