package main

import (
	"encoding/json"
	"io"
)

// writeJSON encodes v as indented JSON. Commands pass cmd.OutOrStdout() so
// JSON never mixes with progress output on stderr.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
