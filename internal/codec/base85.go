package codec

import (
	"errors"
	"fmt"
)

// RFC 1924 alphabet, as used by git binary patches and the host system's
// existing note corpus. Order matters: previously written notes must keep
// decoding byte for byte.
const base85Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

var ErrBase85 = errors.New("invalid base85 payload")

var base85Decode [256]int16

func init() {
	for i := range base85Decode {
		base85Decode[i] = -1
	}
	for i := 0; i < len(base85Alphabet); i++ {
		base85Decode[base85Alphabet[i]] = int16(i)
	}
}

// encode85 maps src to base85 text: 4-byte big-endian groups become 5
// digits, the final partial group is zero-padded on input and truncated on
// output, so len(out) == ceil(len(src)*5/4).
func encode85(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	out := make([]byte, 0, (len(src)+3)/4*5)
	var group [5]byte
	for off := 0; off < len(src); off += 4 {
		rem := len(src) - off
		if rem > 4 {
			rem = 4
		}
		var v uint32
		for i := 0; i < 4; i++ {
			v <<= 8
			if i < rem {
				v |= uint32(src[off+i])
			}
		}
		for i := 4; i >= 0; i-- {
			group[i] = base85Alphabet[v%85]
			v /= 85
		}
		out = append(out, group[:rem+1]...)
	}
	return string(out)
}

// decode85 inverts encode85. Partial final groups are padded with the
// highest digit before decoding and the surplus bytes dropped afterwards.
func decode85(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if len(s)%5 == 1 {
		return nil, fmt.Errorf("%w: length %d", ErrBase85, len(s))
	}
	padding := (5 - len(s)%5) % 5
	out := make([]byte, 0, (len(s)+4)/5*4)
	var digits [5]int64
	for off := 0; off < len(s); off += 5 {
		rem := len(s) - off
		if rem > 5 {
			rem = 5
		}
		for i := 0; i < 5; i++ {
			if i < rem {
				d := base85Decode[s[off+i]]
				if d < 0 {
					return nil, fmt.Errorf("%w: byte %q", ErrBase85, s[off+i])
				}
				digits[i] = int64(d)
			} else {
				digits[i] = 84
			}
		}
		var v int64
		for i := 0; i < 5; i++ {
			v = v*85 + digits[i]
		}
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: group overflow", ErrBase85)
		}
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out[:len(out)-padding], nil
}
