package bpe

// vocabulary is the bidirectional map between codepoint-string tokens and
// integer IDs (spec §3). The reverse map is derived once at construction and
// is total over every ID appearing in the forward map.
type vocabulary struct {
	tokenToID map[string]int
	idToToken map[int]string
}

func newVocabulary(vocab map[string]int) *vocabulary {
	idToToken := make(map[int]string, len(vocab))
	for token, id := range vocab {
		idToToken[id] = token
	}
	return &vocabulary{tokenToID: vocab, idToToken: idToToken}
}

func (v *vocabulary) id(token string) (int, bool) {
	id, ok := v.tokenToID[token]
	return id, ok
}

func (v *vocabulary) token(id int) (string, bool) {
	tok, ok := v.idToToken[id]
	return tok, ok
}
