package embedding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP 102 after two words, got %d", ids[3])
	}
	if attn[0] != 1 || attn[3] != 1 || attn[4] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize(strings.Repeat("word ", 50), 8)
	if len(ids) != 8 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	if ids[7] != 102 {
		t.Errorf("last token should be SEP, got %d", ids[7])
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attn[%d]=%d, want 1 for a full sequence", i, a)
		}
	}
}

func testVocab() map[string]int64 {
	tokens := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "tuition", "fee", "##s", "hostel", "?", "un", "##aff", "##ord", "##able"}
	v := make(map[string]int64, len(tokens))
	for i, tok := range tokens {
		v[tok] = int64(i)
	}
	return v
}

func TestWordPieceTokenizer(t *testing.T) {
	tok := NewWordPieceTokenizer(testVocab())
	ids, attn, _ := tok.Tokenize("Hostel fees? Unaffordable!", 16)
	// [CLS] hostel fee ##s ? un ##aff ##ord ##able [UNK] [SEP]
	want := []int64{2, 7, 5, 6, 8, 9, 10, 11, 12, 1, 3}
	for i, w := range want {
		if ids[i] != w {
			t.Fatalf("ids[%d]=%d, want %d (ids=%v)", i, ids[i], w, ids[:len(want)])
		}
	}
	if attn[len(want)-1] != 1 || attn[len(want)] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}
}

func TestWordPieceTokenizer_UnknownWord(t *testing.T) {
	tok := NewWordPieceTokenizer(testVocab())
	ids, _, _ := tok.Tokenize("xyz", 4)
	if ids[1] != 1 {
		t.Errorf("expected [UNK]=1, got %d", ids[1])
	}
}

func TestLoadWordPieceTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\nfee\n"), 0600); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadWordPieceTokenizer(path)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("fee", 4)
	if ids[0] != 2 || ids[1] != 4 || ids[2] != 3 {
		t.Errorf("unexpected ids %v", ids)
	}
	if _, err := LoadWordPieceTokenizer(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing vocab")
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
