package ggufvocab

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// buildGGUF assembles a minimal, valid GGUF byte stream with the given
// tokenizer metadata and zero tensors, mirroring the on-disk layout
// readHeader expects: magic, version, counts, then the kv table.
func buildGGUF(t *testing.T, tokens, merges []string, types []int32) []byte {
	t.Helper()
	var buf bytes.Buffer

	buf.WriteString(magic)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // tensor count
	binary.Write(&buf, binary.LittleEndian, uint64(4)) // kv count

	writeString := func(s string) {
		binary.Write(&buf, binary.LittleEndian, uint64(len(s)))
		buf.WriteString(s)
	}
	writeKV := func(key string) {
		writeString(key)
	}

	// tokenizer.ggml.model: string
	writeKV(keyModel)
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeString))
	writeString("gpt2")

	// tokenizer.ggml.tokens: array<string>
	writeKV(keyTokens)
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeArray))
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeString))
	binary.Write(&buf, binary.LittleEndian, uint64(len(tokens)))
	for _, tok := range tokens {
		writeString(tok)
	}

	// tokenizer.ggml.merges: array<string>
	writeKV(keyMerges)
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeArray))
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeString))
	binary.Write(&buf, binary.LittleEndian, uint64(len(merges)))
	for _, m := range merges {
		writeString(m)
	}

	// tokenizer.ggml.token_type: array<int32>
	writeKV(keyTokenType)
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeArray))
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeInt32))
	binary.Write(&buf, binary.LittleEndian, uint64(len(types)))
	for _, ty := range types {
		binary.Write(&buf, binary.LittleEndian, ty)
	}

	return buf.Bytes()
}

func TestNewFromFileBuildsTokenizerAndControlTokens(t *testing.T) {
	tokens := []string{"h", "e", "l", "o", "<|endoftext|>", "hel"}
	merges := []string{"h e", "he l"}
	types := []int32{1, 1, 1, 1, 3, 1}

	data := buildGGUF(t, tokens, merges, types)
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tok, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}

	ids, err := tok.Encode("<|endoftext|>hel")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) == 0 || ids[0] != 4 {
		t.Fatalf("expected the control token id 4 first, got %v", ids)
	}

	decoded, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "<|endoftext|>hel" {
		t.Fatalf("got %q, want %q", decoded, "<|endoftext|>hel")
	}
}

func TestNewFromFileTreatsUserDefinedAsAddedToken(t *testing.T) {
	// "<custom>" uses characters ('<', '>', 'c', 'u', 's', 't', 'm') that
	// have no entry in the plain byte vocab below (only h, e, l, o do),
	// so it can only ever be produced as a literal added token, never
	// synthesized by the merge pipeline from the plain vocab.
	tokens := []string{"h", "e", "l", "o", "<custom>"}
	var merges []string
	types := []int32{1, 1, 1, 1, tokenTypeUserDefined}

	data := buildGGUF(t, tokens, merges, types)
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tok, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}

	ids, err := tok.Encode("<custom>hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) == 0 || ids[0] != 4 {
		t.Fatalf("expected the user-defined token id 4 first, got %v", ids)
	}

	decoded, err := tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "<custom>hello" {
		t.Fatalf("got %q, want %q", decoded, "<custom>hello")
	}
}

func TestNewFromFileMmapMatchesBufferedRead(t *testing.T) {
	tokens := []string{"h", "e", "l", "o", "he"}
	merges := []string{"h e"}
	types := []int32{1, 1, 1, 1, 1}

	data := buildGGUF(t, tokens, merges, types)
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tok, err := NewFromFileMmap(path)
	if err != nil {
		t.Fatalf("NewFromFileMmap: %v", err)
	}
	ids, err := tok.Encode("he")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) == 0 {
		t.Fatalf("expected at least one token id")
	}

	buffered, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	want, err := buffered.Encode("he")
	if err != nil {
		t.Fatalf("buffered Encode: %v", err)
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("mmap Encode = %v, buffered Encode = %v", ids, want)
	}
}

func TestNewFromFileRejectsNonGPT2Model(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(1))
	key := keyModel
	binary.Write(&buf, binary.LittleEndian, uint64(len(key)))
	buf.WriteString(key)
	binary.Write(&buf, binary.LittleEndian, uint32(valueTypeString))
	val := "llama-spm"
	binary.Write(&buf, binary.LittleEndian, uint64(len(val)))
	buf.WriteString(val)

	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := NewFromFile(path)
	if err == nil {
		t.Fatalf("expected an error for a non-gpt2 tokenizer model")
	}
}
