package diff

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "rev": {},
	"hon": {}, "jr": {}, "sr": {}, "st": {}, "ave": {}, "blvd": {},
	"rd": {}, "no": {}, "vs": {}, "etc": {}, "dept": {}, "est": {},
	"inc": {}, "ltd": {}, "co": {}, "corp": {}, "gov": {}, "sec": {},
	"fig": {}, "approx": {}, "jan": {}, "feb": {}, "mar": {}, "apr": {},
	"jun": {}, "jul": {}, "aug": {}, "sep": {}, "sept": {}, "oct": {},
	"nov": {}, "dec": {}, "mon": {}, "tue": {}, "wed": {}, "thu": {},
	"fri": {}, "sat": {}, "sun": {},
}

// SplitSentences segments text into an ordered sequence of sentences. A
// sentence ends at '.', '!' or '?' followed by whitespace, except when the
// period terminates a common abbreviation or sits inside a decimal number.
// Blank lines always end a sentence. Empty segments are discarded.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)

	flush := func(start, end int) int {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			sentences = append(sentences, s)
		}
		return end
	}

	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch r {
		case '!', '?':
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				start = flush(start, i+1)
			}
		case '.':
			if isSentencePeriod(runes, i) {
				start = flush(start, i+1)
			}
		case '\n':
			// A blank line separates sentences even without punctuation.
			if i+1 < len(runes) && runes[i+1] == '\n' {
				start = flush(start, i)
			}
		}
	}
	flush(start, len(runes))

	return sentences
}

// isSentencePeriod decides whether the period at runes[i] ends a sentence.
func isSentencePeriod(runes []rune, i int) bool {
	// Must be followed by whitespace or end of text.
	if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
		return false
	}

	// Decimal like "3.5" never reaches here (next rune is a digit), but a
	// trailing numeral like "No. 5" does: the word before decides.
	word := wordBefore(runes, i)
	if word == "" {
		return true
	}
	if _, abbr := abbreviations[strings.ToLower(word)]; abbr {
		return false
	}
	// Single capital letter reads as an initial ("John Q. Public").
	if len(word) == 1 && unicode.IsUpper([]rune(word)[0]) {
		return false
	}
	return true
}

// wordBefore returns the contiguous letter run immediately before index i.
func wordBefore(runes []rune, i int) string {
	end := i
	start := end
	for start > 0 && (unicode.IsLetter(runes[start-1]) || unicode.IsDigit(runes[start-1])) {
		start--
	}
	return string(runes[start:end])
}
