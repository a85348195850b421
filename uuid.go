package beacon

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// A UUID is the 128-bit proximity identifier of a beacon region.
// It is kept in natural (big-endian) byte order, which is also the
// order it is transmitted in.
type UUID []byte

// Parse parses a standard-format UUID string, such as
// "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0". Dashes are optional.
func Parse(s string) (UUID, error) {
	s = strings.Replace(s, "-", "", -1)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 16 {
		return nil, fmt.Errorf("proximity UUIDs must have length 16, got %d", len(b))
	}
	return UUID(b), nil
}

// MustParse parses a standard-format UUID string,
// like Parse, but panics in case of error.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Len returns the length of the UUID, in bytes.
func (u UUID) Len() int { return len(u) }

// Equal returns a boolean reporting whether two UUIDs are equal.
func (u UUID) Equal(v UUID) bool { return bytes.Equal(u, v) }

// String hex-encodes a UUID in the dashed 8-4-4-4-12 form.
func (u UUID) String() string {
	if len(u) != 16 {
		return fmt.Sprintf("%X", []byte(u))
	}
	return fmt.Sprintf("%X-%X-%X-%X-%X", []byte(u[0:4]), []byte(u[4:6]), []byte(u[6:8]), []byte(u[8:10]), []byte(u[10:16]))
}
