package storage

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/parley/pkg/network"
)

// EncodeTranscript serializes a transcript for a JSON column. A nil
// transcript encodes as an empty array.
func EncodeTranscript(t network.Transcript) ([]byte, error) {
	if t == nil {
		t = network.Transcript{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding transcript: %w", err)
	}
	return b, nil
}

// DecodeTranscript parses a transcript column.
func DecodeTranscript(b []byte) (network.Transcript, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var t network.Transcript
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	if len(t) == 0 {
		return nil, nil
	}
	return t, nil
}
