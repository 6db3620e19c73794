package lexicon

import "strings"

// Affix lists ordered so the longest candidate is tried first. The stemmer is
// a heuristic approximation of Indonesian affix stripping; false stems on
// unusual words are an accepted error mode.
var (
	suffixes = []string{
		"kannya", "annya", "inya",
		"kan", "nya", "lah", "kah", "pun",
		"an", "i",
	}
	prefixes = []string{
		"menge", "penge",
		"meng", "meny", "peng", "peny",
		"mem", "men", "pem", "pen",
		"ber", "ter",
		"me", "pe", "di", "ke", "se",
	}
)

// stemSafetyMargin guards against stripping an affix that would leave too
// little of the word behind: the remaining stem must be longer than the
// stripped affix by at least this margin. One-rune affixes additionally
// require the stem to keep at least stemMinLen runes, so a short root like
// "gizi" survives the "i" suffix intact.
const (
	stemSafetyMargin = 1
	stemMinLen       = 3
)

// Stem strips at most one suffix and then at most one prefix from the word.
func Stem(word string) string {
	stem := stripAffix(word, suffixes, strings.HasSuffix, strings.TrimSuffix)
	stem = stripAffix(stem, prefixes, strings.HasPrefix, strings.TrimPrefix)
	return stem
}

func stripAffix(
	word string,
	affixes []string,
	match func(s, affix string) bool,
	trim func(s, affix string) string,
) string {
	for _, affix := range affixes {
		if !match(word, affix) {
			continue
		}
		rest := trim(word, affix)
		required := len(affix) + stemSafetyMargin
		if required < stemMinLen {
			required = stemMinLen
		}
		if len(rest) <= required {
			continue
		}
		return rest
	}
	return word
}
