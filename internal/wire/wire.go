// Package wire holds the low-level byte/string shaping the codec package
// builds its DataMap/PackedData transform on top of: base64 for byte
// payloads and RFC3339Nano for timestamps, factored out so codec's pack/
// unpack logic reads as structural classification rather than encoding
// plumbing.
package wire

import (
	"encoding/base64"
	"time"
)

// EncodeBytes renders b as the base64 string used on the wire for the 'u8'
// and 'ab' tags.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes inverts EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// EncodeTime renders t as the ISO 8601 string used on the wire for the 'd'
// tag.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeTime inverts EncodeTime.
func DecodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
