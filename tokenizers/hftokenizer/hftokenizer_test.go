package hftokenizer

import (
	"errors"
	"testing"

	"github.com/gomlx/gpttoken/tokenizers/api"
)

// testSimpleBPETokenizerJSON exercises the full merge chain: "hello" merges
// h+e->he, l+l->ll, he+ll->hell, hell+o->hello; "world" merges r+l->rl,
// w+o->wo, wo+rl->worl, worl+d->world.
var testSimpleBPETokenizerJSON = []byte(`{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "<unk>", "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {"type": "ByteLevel"},
  "model": {
    "type": "BPE",
    "vocab": {
      "h": 1, "e": 2, "l": 3, "o": 4, "w": 5, "r": 6, "d": 7,
      "he": 8, "ll": 9, "rl": 10, "hell": 11, "hello": 12,
      "wo": 13, "worl": 14, "world": 15, " ": 16, "Ġ": 17,
      "Ġworld": 18
    },
    "merges": [
      "h e", "l l", "r l", "he ll", "hell o", "w o", "wo rl", "worl d"
    ]
  }
}`)

func TestNewFromContentRejectsNonBPE(t *testing.T) {
	_, err := NewFromContent([]byte(`{"model": {"type": "WordPiece", "vocab": {"a": 0}}}`))
	if !errors.Is(err, api.ErrKind(api.ConfigMalformed)) {
		t.Fatalf("got %v, want ConfigMalformed", err)
	}
}

func TestNewFromContentRejectsBadJSON(t *testing.T) {
	_, err := NewFromContent([]byte(`not json`))
	if !errors.Is(err, api.ErrKind(api.ConfigMalformed)) {
		t.Fatalf("got %v, want ConfigMalformed", err)
	}
}

func TestEncodeDecodeSimpleBPE(t *testing.T) {
	tok, err := NewFromContent(testSimpleBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent: %v", err)
	}

	ids, err := tok.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 1 || ids[0] != 12 {
		t.Fatalf("Encode(hello) = %v, want [12]", ids)
	}

	decoded, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "hello" {
		t.Fatalf("Decode(%v) = %q, want %q", ids, decoded, "hello")
	}
}

func TestAddedTokenRoundTrip(t *testing.T) {
	tok, err := NewFromContent(testSimpleBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent: %v", err)
	}

	ids, err := tok.Encode("<unk>hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if ids[0] != 0 {
		t.Fatalf("expected the added token id 0 first, got %v", ids)
	}

	decoded, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "<unk>hello" {
		t.Fatalf("got %q, want %q", decoded, "<unk>hello")
	}

	decodedHidden, err := tok.DecodeOpt(ids, false, true)
	if err != nil {
		t.Fatalf("DecodeOpt: %v", err)
	}
	if decodedHidden != "hello" {
		t.Fatalf("got %q, want %q", decodedHidden, "hello")
	}
}
