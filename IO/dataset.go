package IO

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrInsufficientData = errors.New("split shorter than block size")

// Batch holds B context windows and their next-token targets.
type Batch struct {
	Contexts [][]int // (B x T)
	Targets  [][]int // (B x T), Contexts shifted left by one
}

// Split cuts encoded into a train prefix and a validation suffix by count.
func Split(encoded []int, trainFrac float64) (train, val []int) {
	n := int(trainFrac * float64(len(encoded)))
	n = max(0, min(n, len(encoded)))
	return encoded[:n], encoded[n:]
}

// SampleBatch draws batchSize windows with uniformly random start offsets
// in [0, len(data)-blockSize). Offsets may repeat.
func SampleBatch(data []int, batchSize, blockSize int, rng *rand.Rand) (Batch, error) {
	if blockSize <= 0 || len(data) <= blockSize {
		return Batch{}, fmt.Errorf("%w: have %d tokens, need more than %d", ErrInsufficientData, len(data), blockSize)
	}
	b := Batch{
		Contexts: make([][]int, batchSize),
		Targets:  make([][]int, batchSize),
	}
	span := len(data) - blockSize
	for k := 0; k < batchSize; k++ {
		i := rng.IntN(span)
		b.Contexts[k] = append([]int(nil), data[i:i+blockSize]...)
		b.Targets[k] = append([]int(nil), data[i+1:i+blockSize+1]...)
	}
	return b, nil
}
