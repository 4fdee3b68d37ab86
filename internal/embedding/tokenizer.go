package embedding

import (
	"strings"
	"unicode"
)

// CLIP text encoder special tokens.
const (
	clipStartToken = 49406
	clipEndToken   = 49407
	clipVocabSize  = 49408
	// ContextLength is the fixed CLIP text sequence length.
	ContextLength = 77
)

// Tokenizer produces token IDs and an attention mask for a text encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer lowercases and splits text into words and punctuation and maps each piece to
// a hash-based id inside the CLIP vocabulary. It lays out sequences the way CLIP expects
// (start token, pieces, end token, end-token padding) but is not a BPE tokenizer.
type SimpleTokenizer struct{}

// Tokenize produces padded token IDs of length maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 2 {
		maxTokens = ContextLength
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = clipStartToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % clipStartToken)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = clipEndToken
	attentionMask[pos] = 1
	for i := pos + 1; i < maxTokens; i++ {
		inputIDs[i] = clipEndToken
	}
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and returns non-empty words. Punctuation runs are
// separate words.
func SplitWords(text string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r):
			flush()
			words = append(words, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return words
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		h = 0
	}
	return h
}
