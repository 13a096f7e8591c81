package wager

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	cursorVersion   = "v1"
	cursorDelimiter = ":"
	cursorSegments  = 3
)

// EncodeCursor packs a keyset position into an opaque page cursor.
func EncodeCursor(key PageKey) string {
	raw := strings.Join([]string{
		cursorVersion,
		strconv.FormatInt(key.CreatedBefore.UnixNano(), 10),
		key.IDBefore,
	}, cursorDelimiter)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks an opaque page cursor. An empty cursor addresses the
// first page.
func DecodeCursor(cursor string) (PageKey, error) {
	if strings.TrimSpace(cursor) == "" {
		return PageKey{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return PageKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	segments := strings.SplitN(string(decoded), cursorDelimiter, cursorSegments)
	if len(segments) != cursorSegments || segments[0] != cursorVersion {
		return PageKey{}, fmt.Errorf("%w: malformed value", ErrInvalidCursor)
	}
	nanos, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return PageKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if segments[2] == "" {
		return PageKey{}, fmt.Errorf("%w: missing row id", ErrInvalidCursor)
	}
	return PageKey{
		CreatedBefore: time.Unix(0, nanos).UTC(),
		IDBefore:      segments[2],
	}, nil
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}
