package IO

import (
	"errors"
	"slices"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	corpus := "Thanos: I am inevitable.\nTony: And I... am Iron Man. Ünïcödé ✓"
	v := BuildVocabulary(corpus)

	for _, text := range []string{corpus, "", "man", "I am\n", "✓Ü"} {
		ids, err := v.Encode(text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		got, err := v.Decode(ids)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != text {
			t.Fatalf("round trip = %q, want %q", got, text)
		}
	}
}

func TestVocabularyDeterministicAndSorted(t *testing.T) {
	a := BuildVocabulary("hello world")
	b := BuildVocabulary("hello world")
	if !slices.Equal(a.IDToChar, b.IDToChar) {
		t.Fatalf("vocab differs: %q vs %q", string(a.IDToChar), string(b.IDToChar))
	}
	if !slices.IsSorted(a.IDToChar) {
		t.Fatalf("vocab not sorted: %q", string(a.IDToChar))
	}
	if got, want := string(a.IDToChar), " dehlorw"; got != want {
		t.Fatalf("vocab = %q, want %q", got, want)
	}
	for i, r := range a.IDToChar {
		if a.CharToID[r] != i {
			t.Fatalf("CharToID[%q] = %d, want %d", r, a.CharToID[r], i)
		}
	}
}

func TestEncodeUnknownSymbol(t *testing.T) {
	v := BuildVocabulary("abc")
	if _, err := v.Encode("abz"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestDecodeIndexOutOfRange(t *testing.T) {
	v := BuildVocabulary("abc")
	for _, ids := range [][]int{{0, 3}, {-1}} {
		if _, err := v.Decode(ids); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("Decode(%v) err = %v, want ErrIndexOutOfRange", ids, err)
		}
	}
}

func TestVocabularyString(t *testing.T) {
	v := BuildVocabulary("ba\n")
	if got, want := v.String(), `['\n', 'a', 'b']`; got != want {
		t.Fatalf("String() = %s, want %s", got, want)
	}
}

func TestVocabularyCharsIsACopy(t *testing.T) {
	v := BuildVocabulary("cab")
	chars := v.Chars()
	if string(chars) != "abc" {
		t.Fatalf("chars = %q", string(chars))
	}
	chars[0] = 'z'
	if v.IDToChar[0] != 'a' {
		t.Fatal("Chars exposed the internal slice")
	}
}
