// Package pretokenize splits running text into the word-level tokens that
// WordPiece expects, following BERT's BasicTokenizer.
package pretokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Options controls the normalization applied before splitting.
type Options struct {
	Lowercase    bool
	StripAccents bool
}

// Basic is a BERT-style basic tokenizer. The zero value splits without
// lowercasing or accent stripping.
type Basic struct {
	opts Options
}

// NewBasic returns a basic tokenizer using opts.
func NewBasic(opts Options) *Basic {
	return &Basic{opts: opts}
}

// Tokenize cleans text, isolates CJK ideographs, and splits on whitespace
// and punctuation. Punctuation characters become tokens of their own.
func (b *Basic) Tokenize(text string) []string {
	text = cleanText(text)
	text = tokenizeChineseChars(text)
	if b.opts.Lowercase {
		text = strings.ToLower(text)
	}
	if b.opts.StripAccents {
		text = stripAccents(text)
	}

	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}

	return tokens
}

// cleanText removes NUL, U+FFFD and control characters and maps whitespace
// to plain spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == unicode.ReplacementChar || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// stripAccents drops combining marks after NFD decomposition.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

func tokenizeChineseChars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isChineseChar(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

func splitOnPunctuation(word string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	for _, r := range word {
		if !isPunctuation(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		tokens = append(tokens, string(r))
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}

	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}

	return unicode.IsControl(r)
}

// isPunctuation treats all non-alphanumeric ASCII as punctuation, as BERT
// does, plus the Unicode punctuation categories.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}

	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
