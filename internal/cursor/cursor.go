// Package cursor encodes and decodes opaque keyset-pagination tokens.
//
// A token is the base64 of a JSON object carrying the boundary row's id and
// priority. Clients must treat tokens as opaque; the format is part of the
// public API contract and must not change shape.
package cursor

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Cursor is a pagination boundary: the id and priority of the row the next
// (or previous) page is anchored at.
type Cursor struct {
	TokenID       string `json:"token_id"`
	TokenPriority int    `json:"token_priority"`
}

// Encode serializes a cursor into an opaque token.
func Encode(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses an opaque token back into a cursor.
func Decode(token string) (Cursor, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, eris.Wrap(err, "cursor: decode base64")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, eris.Wrap(err, "cursor: unmarshal")
	}
	return c, nil
}
