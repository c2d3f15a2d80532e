package bpe

import "golang.org/x/text/unicode/norm"

// normalizeNFC applies Unicode Normalization Form C (canonical decomposition
// followed by canonical composition) to text. norm.NFC.String never returns
// an error for well-formed UTF-8 input; malformed UTF-8 is normalized
// byte-for-byte by the x/text implementation rather than rejected, which is
// why this function has no error return — the reference's "any normalizer
// failure is fatal" clause has no way to trigger against this library.
func normalizeNFC(text string) string {
	return norm.NFC.String(text)
}
