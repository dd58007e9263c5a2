package statement

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Decoder normalizes raw statement bytes to UTF-8 text.
type Decoder interface {
	Decode(data []byte) (string, error)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Win1251Decoder handles the two encodings 1C exports are seen in:
// UTF-8 (with or without BOM) and Windows-1251.
type Win1251Decoder struct{}

// NewWin1251Decoder creates the default statement decoder.
func NewWin1251Decoder() *Win1251Decoder {
	return &Win1251Decoder{}
}

// Decode returns the file content as UTF-8 text. Valid UTF-8 input is
// passed through; anything else is transcoded from Windows-1251.
func (d *Win1251Decoder) Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode statement: windows-1251: %w", err)
	}
	return string(decoded), nil
}
