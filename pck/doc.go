// Package pck defines the record model shared by every store, loader and saver:
// the JSON record codec, numeric array values, key naming conventions and the
// error kinds callers check with errors.Is.
//
// # Records
//
// A record is any JSON-representable value: map[string]any, []any, string,
// int64, float64, bool, nil, plus two values JSON can't express natively:
//
//   - []byte is stored as the tagged string "base64(<std base64>)64b" and
//     turned back into []byte by [Decode]
//   - *[Array] (numeric n-dimensional array) is stored as nested lists and
//     decodes as nested []any; use [AsArray] to re-hydrate it
//
// # Keys
//
// Keys use '/' as a hierarchy separator. The part before the last '/' is the
// key's group (see [Group]). A top-level key "description" holds a
// human-readable summary of the whole store.
package pck
