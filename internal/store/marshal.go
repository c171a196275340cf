package store

import (
	"fmt"

	"github.com/roach88/custody/internal/ledger"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// The stored text is the exact serialization that went into the hash.
func marshalPayload(payload ledger.Object) (string, error) {
	if payload == nil {
		payload = ledger.Object{}
	}
	data, err := ledger.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses stored payload TEXT.
// Uses ledger.ParseObject so integers above 2^53 keep their precision.
func unmarshalPayload(data string) (ledger.Object, error) {
	if data == "" || data == "{}" {
		return ledger.Object{}, nil
	}
	obj, err := ledger.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}
