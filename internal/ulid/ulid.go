// Package ulid provides a thin wrapper around github.com/oklog/ulid/v2
// for locally generated identifiers.
//
// Local ids never leave the machine: the remote service assigns its own
// ids. ULIDs are used because they sort by creation time, which keeps
// cached collections and journal rows in a stable, readable order.
package ulid

import (
	"bytes"
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// PrefixFolder marks local folder ids
	PrefixFolder = "fld"

	// PrefixFile marks local file ids
	PrefixFile = "fil"

	// PrefixPass marks reconciliation pass ids
	PrefixPass = "pass"

	// PrefixLog marks journal entries
	PrefixLog = "log"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
	// Nil represents the zero value of ULID
	Nil = ULID{ulid.ULID{}, ""}
)

// ULID wraps ulid.ULID with an optional textual prefix.
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a new ULID with the current timestamp.
func Generate() ULID {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new ULID with the current timestamp and a prefix.
func GenerateWithPrefix(prefix string) ULID {
	id := NewWithTime(time.Now())
	id.prefix = prefix
	return id
}

// NewWithTime creates a new ULID with a specific timestamp.
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{id, ""}
}

// Parse parses a plain ("01AN4Z07BY79KA1307SR9X4MV3") or prefixed
// ("fld-01AN4Z07BY79KA1307SR9X4MV3") ULID string.
func Parse(id string) (ULID, error) {
	prefix, rawID := split(id)

	parsed, err := ulid.Parse(rawID)
	if err != nil {
		return ULID{}, err
	}

	return ULID{parsed, prefix}, nil
}

// Validate reports whether id is a valid plain or prefixed ULID.
func Validate(id string) bool {
	_, rawID := split(id)
	_, err := ulid.Parse(rawID)
	return err == nil
}

func split(id string) (prefix, rawID string) {
	if i := strings.LastIndex(id, PrefixSeparator); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// Compare compares two ULIDs lexicographically, ignoring prefixes.
func (u ULID) Compare(other ULID) int {
	return bytes.Compare(u.ULID[:], other.ULID[:])
}

// IsZero returns true if the ULID is the zero value.
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

// Prefix returns the prefix of the ULID.
func (u ULID) Prefix() string {
	return u.prefix
}

// HasPrefix returns true if the ULID has a prefix.
func (u ULID) HasPrefix() bool {
	return u.prefix != ""
}

// String returns "prefix-ulid", or the bare ULID when no prefix is set.
func (u ULID) String() string {
	if u.prefix != "" {
		return u.prefix + PrefixSeparator + u.ULID.String()
	}
	return u.ULID.String()
}

// Time returns the timestamp component of the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// MarshalJSON implements the json.Marshaler interface.
func (u ULID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (u *ULID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value implements driver.Valuer. ULIDs are stored as strings.
func (u ULID) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan implements sql.Scanner.
func (u *ULID) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		return nil
	case string:
		parsed, err := Parse(src)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(src))
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into ULID", src)
}

// FolderID generates a new local folder id
func FolderID() string {
	return GenerateWithPrefix(PrefixFolder).String()
}

// FileID generates a new local file id
func FileID() string {
	return GenerateWithPrefix(PrefixFile).String()
}

// PassID generates a new reconciliation pass id
func PassID() string {
	return GenerateWithPrefix(PrefixPass).String()
}

// LogID generates a new journal entry id
func LogID() string {
	return GenerateWithPrefix(PrefixLog).String()
}
