package bpe

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/bytemap"
)

// byteLevelVocab gives every one of the 256 byte codepoints its own token ID,
// so Encode/Decode exercise the full C2->C3->C4->C5 pipeline without needing
// a realistic merge table: every pre-token's individual codepoints are
// already in the vocabulary, so the merge loop always bottoms out at
// single-codepoint sub-tokens.
func byteLevelVocab() map[string]int {
	vocab := make(map[string]int, 256)
	for b := 0; b < 256; b++ {
		vocab[string(bytemap.ToCodepoint(byte(b)))] = b
	}
	return vocab
}

func mustNew(t *testing.T, vocab map[string]int, merges []string) *Tokenizer {
	t.Helper()
	tok, err := New(vocab, merges)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tok
}

func TestRoundTripWellFormed(t *testing.T) {
	tok := mustNew(t, byteLevelVocab(), nil)
	const input = "Hello, I am a hélpful assistant🤖 and I am here to help!"

	ids, err := tok.Encode(input)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != normalizeNFC(input) {
		t.Fatalf("round trip mismatch:\ngot  %q\nwant %q", got, normalizeNFC(input))
	}
}

func TestTruncationRepair(t *testing.T) {
	tok := mustNew(t, byteLevelVocab(), nil)
	const input = "Hello, I am a hélpful assistant🤖 and I am here to help!"

	ids, err := tok.Encode(input)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// With a byte-level vocabulary every byte is one id, so cutting two bytes
	// into the emoji's four-byte UTF-8 encoding leaves it truncated.
	cut := strings.Index(normalizeNFC(input), "🤖") + 2
	if len(ids) < cut {
		t.Fatalf("expected at least %d ids, got %d", cut, len(ids))
	}
	truncated := ids[:cut]

	repaired, err := tok.Decode(truncated, true)
	if err != nil {
		t.Fatalf("Decode(validUTF8=true): %v", err)
	}
	if !strings.Contains(repaired, "�") {
		t.Fatalf("expected repaired decode to contain U+FFFD, got %q", repaired)
	}
	if !utf8.ValidString(repaired) {
		t.Fatalf("repaired decode is not valid UTF-8: %q", repaired)
	}

	raw, err := tok.Decode(truncated, false)
	if err != nil {
		t.Fatalf("Decode(validUTF8=false): %v", err)
	}
	if raw == repaired {
		t.Fatalf("expected raw and repaired decodes to differ on a truncated emoji")
	}
}

func TestNFCEquivalence(t *testing.T) {
	tok := mustNew(t, byteLevelVocab(), nil)

	nfd := "é" // "e" + combining acute accent
	nfc := "é"

	idsFromNFD, err := tok.Encode(nfd)
	if err != nil {
		t.Fatalf("Encode(nfd): %v", err)
	}
	idsFromNFC, err := tok.Encode(nfc)
	if err != nil {
		t.Fatalf("Encode(nfc): %v", err)
	}
	if len(idsFromNFD) != len(idsFromNFC) {
		t.Fatalf("encode(nfd)=%v, encode(nfc)=%v: expected equal token sequences", idsFromNFD, idsFromNFC)
	}
	for i := range idsFromNFD {
		if idsFromNFD[i] != idsFromNFC[i] {
			t.Fatalf("encode(nfd)=%v, encode(nfc)=%v: expected equal token sequences", idsFromNFD, idsFromNFC)
		}
	}

	decoded, err := tok.Decode(idsFromNFD, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != nfc {
		t.Fatalf("decode(encode(nfd)) = %q, want NFC form %q", decoded, nfc)
	}
}

func TestWhitespaceOnlyInput(t *testing.T) {
	tok := mustNew(t, byteLevelVocab(), nil)
	ids, err := tok.Encode("   ")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) == 0 {
		t.Fatalf("expected a non-empty id sequence for whitespace-only input")
	}
	got, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != "   " {
		t.Fatalf("got %q, want %q", got, "   ")
	}
}

func TestNewRejectsMalformedMerges(t *testing.T) {
	cases := []struct {
		name   string
		merges []string
	}{
		{"no space", []string{"ab"}},
		{"duplicate", []string{"a b", "a b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(map[string]int{"a": 0}, c.merges)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, api.ErrKind(api.ConfigMalformed)) {
				t.Fatalf("got %v, want ConfigMalformed", err)
			}
		})
	}
}

func TestNewRejectsEmptyVocab(t *testing.T) {
	_, err := New(map[string]int{}, nil)
	if !errors.Is(err, api.ErrKind(api.ConfigMalformed)) {
		t.Fatalf("got %v, want ConfigMalformed", err)
	}
}

func TestEncodeUnknownToken(t *testing.T) {
	// A vocab missing the codepoint for 'x' forces an UnknownToken error.
	vocab := byteLevelVocab()
	delete(vocab, string(bytemap.ToCodepoint('x')))
	tok := mustNew(t, vocab, nil)

	_, err := tok.Encode("x")
	if !errors.Is(err, api.ErrKind(api.UnknownToken)) {
		t.Fatalf("got %v, want UnknownToken", err)
	}
}

func TestDecodeCorruptID(t *testing.T) {
	tok := mustNew(t, byteLevelVocab(), nil)
	_, err := tok.Decode([]int{99999}, true)
	if !errors.Is(err, api.ErrKind(api.CorruptID)) {
		t.Fatalf("got %v, want CorruptID", err)
	}
}
