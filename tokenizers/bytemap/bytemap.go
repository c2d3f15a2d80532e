// Package bytemap implements the reversible byte-to-codepoint remapping that
// lets byte-level BPE operate over a pure-codepoint domain while staying
// invertible back to arbitrary bytes.
//
// The table is a process-wide constant: it is immutable after package
// initialization and carries no tokenizer-specific data, so per the reference
// implementation's two variants (global singleton vs. per-tokenizer field),
// the singleton is preferred here.
package bytemap

// keep reports whether byte b maps to itself as a codepoint. This is the
// GPT-2 byte-level BPE "printable" range: visible ASCII plus the Latin-1
// supplement, minus its control characters, no-break space (0xA0) and soft
// hyphen (0xAD).
func keep(b byte) bool {
	return (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff)
}

var (
	byteToCodepoint [256]rune
	codepointToByte = make(map[rune]byte, 256)
)

func init() {
	n := rune(0)
	for b := 0; b < 256; b++ {
		var cp rune
		if keep(byte(b)) {
			cp = rune(b)
		} else {
			cp = 256 + n
			n++
		}
		byteToCodepoint[b] = cp
		codepointToByte[cp] = byte(b)
	}
}

// ToCodepoint returns the codepoint byte b maps to. Total over all 256 byte
// values.
func ToCodepoint(b byte) rune {
	return byteToCodepoint[b]
}

// ToByte returns the byte codepoint cp maps to, and whether cp is in the
// image of the byte-remap at all. A decode seeing a codepoint outside the
// image is the CorruptToken error case (spec §7); this function only
// reports the lookup miss, it does not construct the error itself.
func ToByte(cp rune) (byte, bool) {
	b, ok := codepointToByte[cp]
	return b, ok
}

// EncodeBytes remaps each byte of b to its codepoint image, in order,
// concatenating them into a single codepoint string (a pre-token, once the
// bytes come from one pre-tokenization match).
func EncodeBytes(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = ToCodepoint(c)
	}
	return string(runes)
}

// DecodeString maps each codepoint of s back through the inverse byte map,
// appending the bytes to buf. ok is false, and the offending codepoint is
// returned, the first time a codepoint isn't in the byte-remap image.
func DecodeString(buf []byte, s string) (out []byte, ok bool, bad rune) {
	out = buf
	for _, r := range s {
		b, found := codepointToByte[r]
		if !found {
			return out, false, r
		}
		out = append(out, b)
	}
	return out, true, 0
}
