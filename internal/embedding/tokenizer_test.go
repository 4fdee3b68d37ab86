package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 {
		t.Fatalf("len(ids)=%d len(attn)=%d", len(ids), len(attn))
	}
	if ids[0] != clipStartToken {
		t.Errorf("expected start token, got %d", ids[0])
	}
	if ids[3] != clipEndToken {
		t.Errorf("expected end token at 3, got %d", ids[3])
	}
	for i := 0; i < 4; i++ {
		if attn[i] != 1 {
			t.Errorf("attention[%d] should be 1", i)
		}
	}
	for i := 4; i < 10; i++ {
		if attn[i] != 0 || ids[i] != clipEndToken {
			t.Errorf("position %d should be padding, got id=%d attn=%d", i, ids[i], attn[i])
		}
	}
	for _, id := range ids[1:3] {
		if id < 0 || id >= clipStartToken {
			t.Errorf("word token %d outside vocabulary", id)
		}
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _ := tok.Tokenize("a b c d e f g h", 5)
	if ids[4] != clipEndToken {
		t.Errorf("last token should be end token, got %d", ids[4])
	}
}

func TestSimpleTokenizer_DefaultLength(t *testing.T) {
	ids, _ := (&SimpleTokenizer{}).Tokenize("x", 0)
	if len(ids) != ContextLength {
		t.Errorf("len(ids)=%d, want %d", len(ids), ContextLength)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b  c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
	words = SplitWords("sunset, beach")
	if len(words) != 3 || words[1] != "," {
		t.Errorf("expected punctuation split, got %v", words)
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
