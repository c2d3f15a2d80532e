// Package bpe implements the core byte-pair-encoding pipeline: NFC
// normalization, GPT-2 pre-tokenization, rank-driven merge, and vocabulary
// lookup (spec components C2-C6). It has no notion of added/special tokens —
// that is tokenizers/addedvocab's job, layered on top.
package bpe

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/bytemap"
)

// Tokenizer is the encoder/decoder facade (C6), built once from a vocabulary
// and an ordered merge list and read-only for its entire lifetime. A
// *Tokenizer is safe to share across concurrent Encode/Decode calls.
type Tokenizer struct {
	vocab  *vocabulary
	merges *mergeTable
}

// New builds a Tokenizer from a vocab map and an ordered merges list of
// "<LEFT> <RIGHT>" strings, one ASCII space apart (spec §6). It fails with
// api.ConfigMalformed if the vocabulary is empty, a merge string has no
// space, or two merge entries name the same pair (ranks must be unique and
// dense, spec §3).
func New(vocab map[string]int, merges []string) (*Tokenizer, error) {
	if len(vocab) == 0 {
		return nil, api.NewError(api.ConfigMalformed, "bpe.New", errors.New("vocabulary is empty"))
	}

	table := newMergeTable(len(merges))
	for i, m := range merges {
		sp := strings.IndexByte(m, ' ')
		if sp < 0 {
			return nil, api.NewError(api.ConfigMalformed, "bpe.New",
				errors.Errorf("merge entry %d (%q) has no separating space", i, m))
		}
		left, right := m[:sp], m[sp+1:]
		if strings.IndexByte(right, ' ') >= 0 {
			return nil, api.NewError(api.ConfigMalformed, "bpe.New",
				errors.Errorf("merge entry %d (%q) has more than one space", i, m))
		}
		if _, dup := table.rankOf(left, right); dup {
			return nil, api.NewError(api.ConfigMalformed, "bpe.New",
				errors.Errorf("merge entry %d (%q) duplicates an earlier merge", i, m))
		}
		table.add(left, right, i)
	}

	return &Tokenizer{vocab: newVocabulary(vocab), merges: table}, nil
}

// Encode converts text to a sequence of token IDs: NFC-normalize, split into
// pre-tokens, run the merge engine over each, then look each resulting
// sub-token up in the vocabulary.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	normalized := normalizeNFC(text)

	pretoks, err := preTokenize(normalized)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(pretoks))
	for _, pretok := range pretoks {
		symbols := splitCodepoints(pretok)
		merged := mergeSymbols(symbols, t.merges)
		for _, sym := range merged {
			id, ok := t.vocab.id(sym)
			if !ok {
				return nil, api.NewError(api.UnknownToken, "bpe.Encode",
					errors.Errorf("sub-token %q not in vocabulary", sym))
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Decode converts a sequence of token IDs back to text. When validUTF8 is
// true, bytes left broken by mid-token truncation are repaired by
// substituting U+FFFD for each invalid byte (spec §4.6); when false,
// the raw decoded byte buffer is returned verbatim as a string, which may not
// be valid UTF-8.
func (t *Tokenizer) Decode(ids []int, validUTF8 bool) (string, error) {
	buf := make([]byte, 0, len(ids)*2)
	for _, id := range ids {
		tok, ok := t.vocab.token(id)
		if !ok {
			return "", api.NewError(api.CorruptID, "bpe.Decode", errors.Errorf("id %d not in vocabulary", id))
		}
		decoded, ok, bad := bytemap.DecodeString(buf, tok)
		if !ok {
			return "", api.NewError(api.CorruptToken, "bpe.Decode",
				errors.Errorf("codepoint %d (U+%04X) in token for id %d has no byte preimage", bad, bad, id))
		}
		buf = decoded
	}

	if !validUTF8 {
		return string(buf), nil
	}
	return repairUTF8(buf), nil
}

// splitCodepoints returns the individual codepoints of a pre-token, each as
// its own one-codepoint string — the merge engine's starting "words" list.
func splitCodepoints(pretok string) []string {
	symbols := make([]string, 0, len(pretok))
	for _, r := range pretok {
		symbols = append(symbols, string(r))
	}
	return symbols
}

// repairUTF8 re-encodes buf as UTF-8, substituting U+FFFD for every byte
// that does not start a valid UTF-8 sequence. unicode/utf8.DecodeRune
// reports such a byte as (RuneError, 1), so a multi-byte sequence cut short
// by truncation becomes one U+FFFD per remaining byte (two for the first two
// bytes of a four-byte emoji), not a single U+FFFD for the whole broken
// sequence.
func repairUTF8(buf []byte) string {
	if utf8.Valid(buf) {
		return string(buf)
	}
	var sb strings.Builder
	sb.Grow(len(buf))
	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRune(buf[i:])
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}
