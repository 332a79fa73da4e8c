// source.go - Loading the source file set
//
// The compiler accepts UTF-8 with or without BOM, plus UTF-16 in
// either byte order when a BOM announces it. Everything else is
// rejected up front so the lexer only ever sees valid UTF-8.

package main

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// readSource loads one source file and returns its text as UTF-8
func readSource(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	text, err := decodeSource(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

// decodeSource normalizes raw file bytes to UTF-8 text
func decodeSource(raw []byte) (string, error) {
	if bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE) {
		// endianness comes from the BOM, which the decoder also strips
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", fmt.Errorf("decoding UTF-16 source: %w", err)
		}
		raw = out
	} else {
		raw = bytes.TrimPrefix(raw, bomUTF8)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("source is not valid UTF-8")
	}
	return string(raw), nil
}
