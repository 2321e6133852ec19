package interfaces

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"
)

// HexBytes is a byte slice carried in JSON as a hex string. Decoding
// tolerates an optional 0x prefix and whitespace so that rows pasted from
// a console dump can be imported as-is.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *HexBytes) UnmarshalJSON(j []byte) error {
	var s string
	if err := json.Unmarshal(j, &s); err != nil {
		return err
	}
	d, err := ParseHexBytes(s)
	if err != nil {
		return err
	}
	*b = d
	return nil
}

// ParseHexBytes decodes s after stripping whitespace and a leading 0x.
func ParseHexBytes(s string) (HexBytes, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	d, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return HexBytes(d), nil
}
