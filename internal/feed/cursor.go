package feed

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor pairs the independent resume positions of both sources.
type Cursor struct {
	Original string `json:"o,omitempty"`
	Repost   string `json:"r,omitempty"`
}

// IsZero reports whether the cursor points at the head of the feed.
func (c Cursor) IsZero() bool {
	return c.Original == "" && c.Repost == ""
}

// EncodeCursor renders c as an opaque URL-safe token.
func EncodeCursor(c Cursor) string {
	if c.IsZero() {
		return ""
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token is
// the head of the feed.
func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	if token == "" {
		return c, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.IsZero() {
		return c, fmt.Errorf("%w: empty position", ErrInvalidCursor)
	}
	return c, nil
}
