package bpe

import (
	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/bytemap"
)

// gpt2Pattern is the fixed GPT-2 legacy pre-tokenization pattern. It needs a
// negative lookahead (\s+(?!\S)) and Unicode general categories, which Go's
// standard RE2-based regexp package cannot express — hence the
// github.com/dlclark/regexp2 dependency, the same choice every GPT-2/tiktoken
// style tokenizer in the surveyed pack makes for this exact pattern.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// splitRegex is compiled once, eagerly, at package initialization rather than
// lazily on first use: the reference implementation's lazily-constructed
// matcher, stored on the tokenizer, is a data race under concurrent use.
// Since the pattern is fixed (spec §1: "only one pre-tokenization regex ...
// is supported"), compiling it as a package-level constant needs no
// per-tokenizer state, matching the byte map's "process-wide constant"
// treatment.
var splitRegex = regexp2.MustCompile(gpt2Pattern, regexp2.None)

// preTokenize splits NFC-normalized text into chunks with the GPT-2 pattern,
// then remaps each chunk's UTF-8 bytes through the byte map into a single
// codepoint string — a pre-token. Pre-tokens are returned in input order.
func preTokenize(text string) ([]string, error) {
	runes := []rune(text)
	var pretoks []string

	m, err := splitRegex.FindRunesMatch(runes)
	if err != nil {
		return nil, api.NewError(api.UnicodeFailure, "pre-tokenize", errors.Wrap(err, "matching split pattern"))
	}
	for m != nil {
		match := string(runes[m.Index : m.Index+m.Length])
		pretoks = append(pretoks, bytemap.EncodeBytes([]byte(match)))
		m, err = splitRegex.FindNextMatch(m)
		if err != nil {
			return nil, api.NewError(api.UnicodeFailure, "pre-tokenize", errors.Wrap(err, "advancing split pattern"))
		}
	}
	return pretoks, nil
}
