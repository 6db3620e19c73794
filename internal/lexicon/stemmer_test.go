package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want string
	}{
		{"makanan", "makan"},
		{"membantu", "bantu"},
		{"makanannya", "makanan"},
		{"kesehatan", "sehat"},
		{"terlambat", "lambat"},
		{"program", "program"},
		{"anak", "anak"},
		{"gizi", "gizi"},
	}
	for _, tc := range tests {
		t.Run(tc.word, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Stem(tc.word))
		})
	}
}

func TestStemSafetyMargin(t *testing.T) {
	t.Parallel()

	// "bukan" ends in "kan" but stripping would leave "bu", which fails the
	// margin; the shorter "an" suffix also fails. The word must survive.
	assert.Equal(t, "bukan", Stem("bukan"))
	// Short words never get shorter than the margin allows.
	assert.Equal(t, "man", Stem("man"))
	// One-rune suffixes on short roots would leave fewer than stemMinLen
	// runes behind, so they are never stripped.
	assert.Equal(t, "nasi", Stem("nasi"))
	assert.Equal(t, "gizi", Stem("gizi"))
}

func TestStemIsIdempotentOnStems(t *testing.T) {
	t.Parallel()

	for _, word := range []string{"makanan", "membantu", "kesehatan"} {
		stem := Stem(word)
		assert.Equal(t, stem, Stem(stem), "stemming %q twice diverged", word)
	}
}
