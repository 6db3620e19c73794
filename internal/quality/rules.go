// Package quality implements the rule-based gate that decides whether an
// acquired item is worth enriching.
package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Weights are the score penalties applied per failing rule. The score starts
// at 1.0 and is floored at 0.
type Weights struct {
	Duplicate    float64 `mapstructure:"duplicate"`
	Language     float64 `mapstructure:"language"`
	MinLength    float64 `mapstructure:"min_length"`
	MaxLength    float64 `mapstructure:"max_length"`
	Bot          float64 `mapstructure:"bot"`
	URLCount     float64 `mapstructure:"url_count"`
	MentionCount float64 `mapstructure:"mention_count"`
	Emoji        float64 `mapstructure:"emoji"`
	RepeatedWord float64 `mapstructure:"repeated_word"`
}

// DefaultWeights returns the production defaults.
func DefaultWeights() Weights {
	return Weights{
		Duplicate:    0.5,
		Language:     0.4,
		MinLength:    0.2,
		MaxLength:    0.1,
		Bot:          0.6,
		URLCount:     0.1,
		MentionCount: 0.1,
		Emoji:        0.15,
		RepeatedWord: 0.15,
	}
}

// Rule names, also used as verdict outcome keys and reason prefixes.
const (
	RuleDuplicate    = "duplicate"
	RuleLanguage     = "language"
	RuleMinLength    = "min_length"
	RuleMaxLength    = "max_length"
	RuleBot          = "bot"
	RuleURLCount     = "url_count"
	RuleMentionCount = "mention_count"
	RuleEmoji        = "emoji"
	RuleRepeatedWord = "repeated_word"
)

// Marker words for the language balance rule. The rule passes when the text
// carries at least as many target-language markers as contrasting-language
// markers.
var (
	indonesianMarkers = []string{
		"yang", "dan", "di", "ini", "itu", "dengan", "untuk", "tidak",
		"dari", "akan", "ada", "sudah", "saya", "kita", "pada", "juga",
	}
	englishMarkers = []string{
		"the", "is", "are", "was", "were", "and", "of", "to", "in",
		"that", "it", "for", "you", "this", "with", "have",
	}
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)

	// Solicitation phrasing commonly seen in bot and spam replies.
	solicitationPattern = regexp.MustCompile(`(?i)(follow\s*(me|back)|folback|follback|cek\s+bio|klik\s+link|link\s+di\s+bio|open\s+bo|jual\s+murah|promo\s+gila|sub(scribe)?\s+(back|channel))`)

	// Handles that are a word followed by a long digit run.
	suspiciousHandlePattern = regexp.MustCompile(`^[A-Za-z]+\d{8,}$`)
)

const (
	maxURLLength = 60
	// repeatedRunLimit is the number of consecutive identical characters at
	// which the bot rule trips.
	repeatedRunLimit = 7
	// repeatedWordLimit is the number of consecutive identical words at which
	// the repeated-word rule fails.
	repeatedWordLimit = 3
)

func countURLs(text string) int {
	return len(urlPattern.FindAllString(text, -1))
}

func countMentions(text string) int {
	return len(mentionPattern.FindAllString(text, -1))
}

// languageBalanced reports whether target-language markers are at least as
// frequent as contrasting-language markers.
func languageBalanced(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	counts := map[string]int{}
	for _, w := range words {
		counts[strings.Trim(w, ".,!?;:\"'()")]++
	}
	var id, en int
	for _, m := range indonesianMarkers {
		id += counts[m]
	}
	for _, m := range englishMarkers {
		en += counts[m]
	}
	return id >= en
}

// looksLikeBot matches the body or handle against the fixed spam pattern set:
// solicitation phrasing, suspicious handle shapes, overlong links, and
// excessive character repetition.
func looksLikeBot(text, handle string) bool {
	if solicitationPattern.MatchString(text) {
		return true
	}
	if handle != "" && suspiciousHandlePattern.MatchString(handle) {
		return true
	}
	for _, u := range urlPattern.FindAllString(text, -1) {
		if len(u) > maxURLLength {
			return true
		}
	}
	return hasCharRun(text, repeatedRunLimit)
}

// hasCharRun reports a run of at least limit identical consecutive runes.
// RE2 has no backreferences, so this is a manual scan.
func hasCharRun(text string, limit int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= limit {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// hasRepeatedWordRun reports limit or more consecutive identical words.
func hasRepeatedWordRun(text string, limit int) bool {
	words := strings.Fields(strings.ToLower(text))
	run := 1
	for i := 1; i < len(words); i++ {
		if words[i] == words[i-1] {
			run++
			if run >= limit {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// countEmoji counts runes in the common emoji blocks.
func countEmoji(text string) int {
	count := 0
	for _, r := range text {
		if isEmoji(r) {
			count++
		}
	}
	return count
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	default:
		return unicode.Is(unicode.So, r) && r > 0x2000
	}
}

// emojiBudget is the platform-optional emoji allowance:
// min(10, ceil(0.3 * text length)).
func emojiBudget(textLen int) int {
	budget := int(math.Ceil(0.3 * float64(textLen)))
	if budget > 10 {
		budget = 10
	}
	return budget
}

// NormalizePrefix lowercases, collapses whitespace, and truncates the body to
// the duplicate-detection prefix length (in runes).
func NormalizePrefix(text string, length int) string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(collapsed)
	if len(runes) > length {
		runes = runes[:length]
	}
	return string(runes)
}
