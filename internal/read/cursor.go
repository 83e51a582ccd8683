package read

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is the decoded form of the opaque keyset pagination token: the
// sort column's value on the last returned row, plus its id as a tiebreak.
type Cursor struct {
	SortValue any   `json:"v"`
	ID        int64 `json:"id"`
}

// EncodeCursor base64url-encodes (no padding) a Cursor as the opaque
// next_cursor token.
func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor. An empty string decodes to a nil
// cursor (first page).
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return &c, nil
}
