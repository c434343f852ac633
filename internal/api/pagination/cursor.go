package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// AuditCursor is the position of the last audit entry a page returned:
// its recorded time and ULID, which together order the log.
type AuditCursor struct {
	Timestamp time.Time
	ID        string
}

// EncodeAuditCursor encodes the cursor as base64(ts_unix_nano:ULID).
func EncodeAuditCursor(timestamp time.Time, id string) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), strings.ToUpper(strings.TrimSpace(id)))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeAuditCursor decodes base64(ts_unix_nano:ULID) into an AuditCursor.
func DecodeAuditCursor(cursor string) (AuditCursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return AuditCursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return AuditCursor{}, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return AuditCursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return AuditCursor{}, ErrInvalidCursor
	}
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return AuditCursor{}, ErrInvalidCursor
	}
	return AuditCursor{Timestamp: time.Unix(0, unixNano).UTC(), ID: id}, nil
}
