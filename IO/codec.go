package IO

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrIndexOutOfRange = errors.New("token index out of range")
)

// Vocabulary maps every distinct character of a corpus to a dense id.
// IDToChar is sorted, so ids are stable for identical corpora.
type Vocabulary struct {
	CharToID map[rune]int
	IDToChar []rune
}

func BuildVocabulary(corpus string) *Vocabulary {
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}
	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	slices.Sort(chars)

	v := &Vocabulary{
		CharToID: make(map[rune]int, len(chars)),
		IDToChar: chars,
	}
	for i, r := range chars {
		v.CharToID[r] = i
	}
	return v
}

func (v *Vocabulary) Size() int {
	return len(v.IDToChar)
}

// Chars returns a copy of the sorted characters.
func (v *Vocabulary) Chars() []rune {
	return slices.Clone(v.IDToChar)
}

func (v *Vocabulary) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for off, r := range text {
		id, ok := v.CharToID[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at byte offset %d", ErrUnknownSymbol, r, off)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (v *Vocabulary) Decode(ids []int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(v.IDToChar) {
			return "", fmt.Errorf("%w: %d at position %d (vocab size %d)", ErrIndexOutOfRange, id, i, len(v.IDToChar))
		}
		sb.WriteRune(v.IDToChar[id])
	}
	return sb.String(), nil
}

// String renders the sorted characters like ['\n', ' ', '!', 'a'].
func (v *Vocabulary) String() string {
	parts := make([]string, len(v.IDToChar))
	for i, r := range v.IDToChar {
		parts[i] = fmt.Sprintf("%q", r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
