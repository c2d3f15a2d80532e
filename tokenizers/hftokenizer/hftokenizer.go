// Package hftokenizer loads a HuggingFace "tokenizer.json" document into a
// gpttoken Tokenizer. JSON parsing and file I/O are the "external loader"
// concerns spec.md places outside the core: this package hands the parsed
// vocab, merges, and added tokens to tokenizers/bpe and
// tokenizers/addedvocab and does nothing else.
//
// Unlike a general HuggingFace "fast tokenizers" port, this loader
// implements exactly the one pipeline the specification names: it requires
// model.type to be "BPE", and otherwise ignores (rather than trying to
// reproduce) the Normalizer/PreTokenizer/Decoder variety a tokenizer.json
// can declare, since only the GPT-2 NFC + byte-level pairing is supported.
package hftokenizer

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/gpttoken/tokenizers/addedvocab"
	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/bpe"
)

// tokenizerJSON mirrors the subset of HuggingFace's tokenizer.json schema
// this loader actually consumes.
type tokenizerJSON struct {
	AddedTokens  []addedTokenJSON `json:"added_tokens"`
	Normalizer   *componentJSON   `json:"normalizer"`
	PreTokenizer *componentJSON   `json:"pre_tokenizer"`
	Model        modelJSON        `json:"model"`
}

type addedTokenJSON struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type componentJSON struct {
	Type string `json:"type"`
}

type modelJSON struct {
	Type   string         `json:"type"`
	Vocab  map[string]int `json:"vocab"`
	Merges []string       `json:"merges"`
}

// Tokenizer is a gpttoken Tokenizer built from a tokenizer.json document. It
// satisfies api.Tokenizer; EncodeOpt/DecodeOpt additionally expose the
// allow_special gate from spec §4.7 that the narrower interface has no room
// for.
type Tokenizer struct {
	bpe   *bpe.Tokenizer
	added *addedvocab.Adapter // nil when the document declares no added tokens
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// NewFromFile reads and parses a tokenizer.json file at path.
func NewFromFile(path string) (*Tokenizer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading tokenizer.json at %q", path)
	}
	return NewFromContent(content)
}

// NewFromContent parses tokenizer.json content already in memory.
func NewFromContent(content []byte) (*Tokenizer, error) {
	var doc tokenizerJSON
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, api.NewError(api.ConfigMalformed, "hftokenizer.NewFromContent", errors.Wrap(err, "parsing tokenizer.json"))
	}

	if doc.Model.Type != "BPE" {
		return nil, api.NewError(api.ConfigMalformed, "hftokenizer.NewFromContent",
			errors.Errorf("model.type %q is not supported; only \"BPE\" is", doc.Model.Type))
	}
	if doc.Normalizer != nil && doc.Normalizer.Type != "" && doc.Normalizer.Type != "NFC" {
		klog.Warningf("hftokenizer: normalizer type %q is not NFC; NFC is applied regardless", doc.Normalizer.Type)
	}
	if doc.PreTokenizer != nil && doc.PreTokenizer.Type != "" && doc.PreTokenizer.Type != "ByteLevel" {
		klog.Warningf("hftokenizer: pre_tokenizer type %q is not ByteLevel; the GPT-2 byte-level pattern is applied regardless", doc.PreTokenizer.Type)
	}

	base, err := bpe.New(doc.Model.Vocab, doc.Model.Merges)
	if err != nil {
		return nil, err
	}

	tok := &Tokenizer{bpe: base}
	if len(doc.AddedTokens) > 0 {
		added := make([]api.AddedToken, len(doc.AddedTokens))
		for i, at := range doc.AddedTokens {
			added[i] = api.AddedToken{ID: at.ID, Content: at.Content, Special: at.Special}
		}
		adapter, err := addedvocab.New(added)
		if err != nil {
			return nil, err
		}
		tok.added = adapter
	}
	return tok, nil
}

// Encode converts text to token IDs with special tokens allowed
// (allow_special=true); see EncodeOpt to control the gate.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	return t.EncodeOpt(text, true)
}

// EncodeOpt converts text to token IDs, routing added-token matches through
// the added-vocabulary adapter when one is present, and gating special
// tokens by allowSpecial.
func (t *Tokenizer) EncodeOpt(text string, allowSpecial bool) ([]int, error) {
	if t.added == nil {
		return t.bpe.Encode(text)
	}
	return t.added.Encode(text, t.bpe, allowSpecial)
}

// Decode converts token IDs back to text with special tokens visible
// (allow_special=true), repairing broken UTF-8 when validUTF8 is true; see
// DecodeOpt to also control the special-token gate.
func (t *Tokenizer) Decode(ids []int, validUTF8 bool) (string, error) {
	return t.DecodeOpt(ids, true, validUTF8)
}

// DecodeOpt converts token IDs back to text, omitting special-token content
// entirely when allowSpecial is false.
func (t *Tokenizer) DecodeOpt(ids []int, allowSpecial, validUTF8 bool) (string, error) {
	if t.added == nil {
		return t.bpe.Decode(ids, validUTF8)
	}
	return t.added.Decode(ids, t.bpe, allowSpecial, validUTF8)
}
