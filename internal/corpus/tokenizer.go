package corpus

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

// TokenMode selects how a line of text becomes a token set.
type TokenMode string

const (
	// ModeSplit cuts the text on a delimiter and keeps every piece verbatim.
	ModeSplit TokenMode = "split"
	// ModeNormalize lower-cases, splits on non-alphanumerics, drops stop
	// words and short words, and stems.
	ModeNormalize TokenMode = "normalize"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Tokenizer turns document text into the token set that gets hashed.
type Tokenizer struct {
	Mode      TokenMode
	Delimiter string
	// Shingle joins each run of Shingle consecutive normalised words into
	// one token. Values below 2 keep single words.
	Shingle int
}

// DefaultTokenizer splits on single spaces.
func DefaultTokenizer() Tokenizer {
	return Tokenizer{Mode: ModeSplit, Delimiter: " "}
}

func (t Tokenizer) Validate() error {
	switch t.Mode {
	case ModeSplit:
		if t.Delimiter == "" {
			return apperrors.New(apperrors.ErrInvalidConfig, "split tokenizer needs a delimiter")
		}
	case ModeNormalize:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown token mode %q", t.Mode)
	}
	return nil
}

// Tokens returns the distinct tokens of text in first-seen order.
func (t Tokenizer) Tokens(text string) []string {
	var words []string
	switch t.Mode {
	case ModeNormalize:
		words = normalize(text)
		if t.Shingle > 1 {
			words = shingles(words, t.Shingle)
		}
	default:
		words = strings.Split(text, t.Delimiter)
	}
	return dedupe(words)
}

func (t Tokenizer) String() string {
	if t.Mode == ModeNormalize {
		return fmt.Sprintf("normalize/shingle=%d", t.Shingle)
	}
	return fmt.Sprintf("split/%q", t.Delimiter)
}

func normalize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		if stemmed := stem(word); stemmed != "" {
			out = append(out, stemmed)
		}
	}
	return out
}

func shingles(words []string, k int) []string {
	if len(words) == 0 {
		return nil
	}
	if len(words) <= k {
		return []string{strings.Join(words, " ")}
	}
	out := make([]string, 0, len(words)-k+1)
	for i := 0; i+k <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+k], " "))
	}
	return out
}

func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem strips the first matching suffix that leaves a long enough stem.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
