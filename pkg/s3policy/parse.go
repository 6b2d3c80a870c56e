package s3policy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ParsePolicy decodes a base64 policy document. The JSON must hold exactly the
// "expiration" and "conditions" keys.
func ParsePolicy(policyBase64 string) (*Document, error) {
	data, err := base64.StdEncoding.DecodeString(policyBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if len(top) != 2 || top["expiration"] == nil || top["conditions"] == nil {
		return nil, fmt.Errorf("%w: expected exactly expiration and conditions", ErrInvalidPolicy)
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if _, err := doc.ExpiresAt(); err != nil {
		return nil, fmt.Errorf("%w: expiration: %v", ErrInvalidPolicy, err)
	}

	return &doc, nil
}
