// Package ggufvocab loads the tokenizer vocabulary embedded in a GGUF model
// file's key-value metadata (the llama.cpp "tokenizer.ggml.*" convention)
// into a gpttoken Tokenizer. It reads only the header, the metadata table,
// and the tensor-info table needed to know where those end; it never reads
// or interprets the tensor data blocks that follow, since the weights
// themselves have no bearing on the BPE vocabulary.
package ggufvocab

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/gpttoken/tokenizers/addedvocab"
	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/bpe"
)

const (
	magic               = "GGUF"
	minSupportedVersion = 2
)

// Metadata keys from the llama.cpp GGUF tokenizer convention.
const (
	keyModel      = "tokenizer.ggml.model"
	keyTokens     = "tokenizer.ggml.tokens"
	keyMerges     = "tokenizer.ggml.merges"
	keyTokenType  = "tokenizer.ggml.token_type"
	keyBOSTokenID = "tokenizer.ggml.bos_token_id"
	keyEOSTokenID = "tokenizer.ggml.eos_token_id"
)

// Token types in the llama.cpp token_type array (1=normal, 2=unknown,
// 3=control, 4=user_defined, 5=unused, 6=byte). Control and user-defined
// entries both bypass the merge pipeline as added tokens; control entries
// are additionally marked special so allow_special gating applies to them.
const (
	tokenTypeControl     = 3
	tokenTypeUserDefined = 4
)

// Tokenizer is a gpttoken Tokenizer built from a GGUF file's embedded
// tokenizer metadata.
type Tokenizer struct {
	bpe   *bpe.Tokenizer
	added *addedvocab.Adapter
}

var _ api.Tokenizer = (*Tokenizer)(nil)

// NewFromFile opens a GGUF file and builds a Tokenizer from its
// tokenizer.ggml.* metadata. It fails with api.ConfigMalformed if the file
// declares a tokenizer model other than "gpt2", or if the required
// tokens/merges arrays are missing.
func NewFromFile(path string) (*Tokenizer, error) {
	klog.Infof("ggufvocab: reading %q", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer f.Close()

	kvs, err := readHeader(f)
	if err != nil {
		return nil, api.NewError(api.ConfigMalformed, "ggufvocab.NewFromFile", errors.Wrapf(err, "reading %q", path))
	}
	return newFromKeyValues(kvs)
}

// NewFromFileMmap is like NewFromFile, but memory-maps the file instead of
// reading it through buffered I/O. Tokenizer metadata sits in the first few
// kilobytes of a GGUF file that is otherwise dominated by gigabytes of
// tensor weights; mapping the whole file and reading only the header region
// out of it avoids the kernel readahead a sequential read would trigger
// across the rest of the file.
func NewFromFileMmap(path string) (*Tokenizer, error) {
	klog.Infof("ggufvocab: mmapping %q", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmapping %q", path)
	}
	defer m.Unmap()

	kvs, err := readHeader(bytes.NewReader(m))
	if err != nil {
		return nil, api.NewError(api.ConfigMalformed, "ggufvocab.NewFromFileMmap", errors.Wrapf(err, "reading %q", path))
	}
	return newFromKeyValues(kvs)
}

func newFromKeyValues(kvs map[string]Value) (*Tokenizer, error) {
	model := kvs[keyModel].String()
	if model != "gpt2" {
		return nil, api.NewError(api.ConfigMalformed, "ggufvocab.NewFromFile",
			errors.Errorf("tokenizer.ggml.model %q is not supported; only \"gpt2\" is", model))
	}

	tokens := kvs[keyTokens].Strings()
	if len(tokens) == 0 {
		return nil, api.NewError(api.ConfigMalformed, "ggufvocab.NewFromFile", errors.New("tokenizer.ggml.tokens is missing or empty"))
	}
	merges := kvs[keyMerges].Strings()
	if merges == nil {
		return nil, api.NewError(api.ConfigMalformed, "ggufvocab.NewFromFile", errors.New("tokenizer.ggml.merges is missing"))
	}
	types := kvs[keyTokenType].Ints()

	vocab := make(map[string]int, len(tokens))
	var added []api.AddedToken
	for id, content := range tokens {
		if len(types) == len(tokens) {
			switch types[id] {
			case tokenTypeControl:
				added = append(added, api.AddedToken{ID: id, Content: content, Special: true})
				continue
			case tokenTypeUserDefined:
				added = append(added, api.AddedToken{ID: id, Content: content, Special: false})
				continue
			}
		}
		vocab[content] = id
	}

	klog.V(2).Infof("ggufvocab: %d vocab entries, %d added tokens, %d merges", len(vocab), len(added), len(merges))

	base, err := bpe.New(vocab, merges)
	if err != nil {
		return nil, err
	}
	tok := &Tokenizer{bpe: base}
	if len(added) > 0 {
		adapter, err := addedvocab.New(added)
		if err != nil {
			return nil, err
		}
		tok.added = adapter
	}
	return tok, nil
}

// Encode converts text to token IDs with special tokens recognized.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	if t.added == nil {
		return t.bpe.Encode(text)
	}
	return t.added.Encode(text, t.bpe, true)
}

// Decode converts token IDs back to text, repairing any truncated UTF-8 at
// the boundaries when validUTF8 is true.
func (t *Tokenizer) Decode(ids []int, validUTF8 bool) (string, error) {
	if t.added == nil {
		return t.bpe.Decode(ids, validUTF8)
	}
	return t.added.Decode(ids, t.bpe, true, validUTF8)
}

// readHeader parses the GGUF magic, version, counts, and key-value table,
// then skips past the tensor-info table without interpreting it, returning
// just the metadata map.
func readHeader(r io.Reader) (map[string]Value, error) {
	var hdr [4]byte
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if string(hdr[:]) != magic {
		return nil, errors.Errorf("invalid magic %q", hdr[:])
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "reading version")
	}
	if version < minSupportedVersion {
		return nil, errors.Errorf("unsupported version %d", version)
	}

	var tensorCount, kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &tensorCount); err != nil {
		return nil, errors.Wrap(err, "reading tensor count")
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return nil, errors.Wrap(err, "reading kv count")
	}

	kvs := make(map[string]Value, kvCount)
	for i := uint64(0); i < kvCount; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading kv %d/%d key", i, kvCount)
		}
		val, err := readValue(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading kv %d/%d value for %q", i, kvCount, key)
		}
		kvs[key] = val
	}

	for i := uint64(0); i < tensorCount; i++ {
		if err := skipTensorInfo(r); err != nil {
			return nil, errors.Wrapf(err, "skipping tensor info %d/%d", i, tensorCount)
		}
	}

	return kvs, nil
}

func skipTensorInfo(r io.Reader) error {
	if _, err := readString(r); err != nil {
		return errors.Wrap(err, "name")
	}
	var nDims uint32
	if err := binary.Read(r, binary.LittleEndian, &nDims); err != nil {
		return errors.Wrap(err, "dims count")
	}
	for i := uint32(0); i < nDims; i++ {
		var dim uint64
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return errors.Wrapf(err, "dim %d", i)
		}
	}
	var ttype uint32
	if err := binary.Read(r, binary.LittleEndian, &ttype); err != nil {
		return errors.Wrap(err, "tensor type")
	}
	var offset uint64
	if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
		return errors.Wrap(err, "offset")
	}
	return nil
}
