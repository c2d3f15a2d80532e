// Package addedvocab implements the added-vocabulary adapter (spec component
// C7): it intercepts exact-string added/special tokens before the BPE
// pipeline sees them on encode, and re-inserts their literal content on
// decode, gated by an allow_special flag in both directions.
package addedvocab

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/gomlx/gpttoken/tokenizers/api"
)

// Adapter wraps a BPE tokenizer with a table of added tokens, matched
// literally (no regex metacharacters) against raw input. Built once and
// read-only afterward, like the tokenizer it wraps.
type Adapter struct {
	contentToID map[string]int
	idToContent map[int]string
	special     map[int]bool
	matcher     *regexp2.Regexp
}

// New builds an Adapter from an ordered list of added-token entries. It fails
// with api.ConfigMalformed if any content is empty or any ID repeats.
func New(tokens []api.AddedToken) (*Adapter, error) {
	contentToID := make(map[string]int, len(tokens))
	idToContent := make(map[int]string, len(tokens))
	special := make(map[int]bool, len(tokens))

	for _, tk := range tokens {
		if tk.Content == "" {
			return nil, api.NewError(api.ConfigMalformed, "addedvocab.New",
				errors.Errorf("added token id %d has empty content", tk.ID))
		}
		if _, dup := idToContent[tk.ID]; dup {
			return nil, api.NewError(api.ConfigMalformed, "addedvocab.New",
				errors.Errorf("added token id %d appears more than once", tk.ID))
		}
		contentToID[tk.Content] = tk.ID
		idToContent[tk.ID] = tk.Content
		if tk.Special {
			special[tk.ID] = true
		}
	}

	pattern := alternationPattern(contentToID)
	var matcher *regexp2.Regexp
	var err error
	if pattern != "" {
		matcher, err = regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, api.NewError(api.UnicodeFailure, "addedvocab.New", errors.Wrap(err, "compiling added-token pattern"))
		}
	}

	return &Adapter{
		contentToID: contentToID,
		idToContent: idToContent,
		special:     special,
		matcher:     matcher,
	}, nil
}

// alternationPattern builds a single alternation regex whose branches are the
// regex-escaped added-token contents, ordered longest-content-first so
// longer literals win over shorter prefixes. The reference relies on regex
// alternation order, which the spec notes is not stable across engines;
// sorting explicitly here resolves the open question (spec §9) in favor of
// an engine-independent, deterministic result.
func alternationPattern(contentToID map[string]int) string {
	contents := make([]string, 0, len(contentToID))
	for c := range contentToID {
		contents = append(contents, c)
	}
	sort.Slice(contents, func(i, j int) bool {
		if len(contents[i]) != len(contents[j]) {
			return len(contents[i]) > len(contents[j])
		}
		return contents[i] < contents[j]
	})
	branches := make([]string, len(contents))
	for i, c := range contents {
		branches[i] = regexp.QuoteMeta(c)
	}
	return strings.Join(branches, "|")
}

// Encode walks text left-to-right, emitting each added-token match as a
// direct ID (when allowed) and forwarding the gaps between matches, and any
// disallowed special-token span, to the wrapped tokenizer.
func (a *Adapter) Encode(text string, tok api.Tokenizer, allowSpecial bool) ([]int, error) {
	if a.matcher == nil {
		return tok.Encode(text)
	}

	var ids []int
	runes := []rune(text)
	pos := 0     // rune offset where the next added-token search starts
	pending := 0 // rune offset where unflushed ordinary text begins

	flush := func(end int) error {
		if end <= pending {
			pending = end
			return nil
		}
		sub, err := tok.Encode(string(runes[pending:end]))
		if err != nil {
			return err
		}
		ids = append(ids, sub...)
		pending = end
		return nil
	}

	m, err := a.matcher.FindRunesMatch(runes[pos:])
	for m != nil && err == nil {
		start := pos + m.Index
		end := start + m.Length
		content := string(runes[start:end])

		id, known := a.contentToID[content]
		if known && (!a.special[id] || allowSpecial) {
			if ferr := flush(start); ferr != nil {
				return nil, ferr
			}
			ids = append(ids, id)
			pending = end
		}
		// else: a disallowed special token, or (impossible, since the pattern
		// is built from contentToID's keys) an unrecognized match — leave it
		// in the pending ordinary-text span to flow through the wrapped
		// tokenizer like any other text.

		pos = end
		if pos >= len(runes) {
			break
		}
		m, err = a.matcher.FindRunesMatch(runes[pos:])
	}
	if err != nil {
		return nil, api.NewError(api.UnicodeFailure, "addedvocab.Encode", errors.Wrap(err, "matching added tokens"))
	}

	if ferr := flush(len(runes)); ferr != nil {
		return nil, ferr
	}
	return ids, nil
}

// Decode converts a sequence of IDs back to text: runs of IDs absent from
// the added-token table are decoded by the wrapped tokenizer, and each added
// ID is rendered as its literal content, unless it is special and
// allowSpecial is false, in which case it is omitted entirely.
func (a *Adapter) Decode(ids []int, tok api.Tokenizer, allowSpecial, validUTF8 bool) (string, error) {
	var sb strings.Builder
	var run []int

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		text, err := tok.Decode(run, validUTF8)
		if err != nil {
			return err
		}
		sb.WriteString(text)
		run = nil
		return nil
	}

	for _, id := range ids {
		content, known := a.idToContent[id]
		if !known {
			run = append(run, id)
			continue
		}
		if err := flush(); err != nil {
			return "", err
		}
		if a.special[id] && !allowSpecial {
			continue
		}
		sb.WriteString(content)
	}
	if err := flush(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
