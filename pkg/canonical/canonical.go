// Package canonical produces the deep-key-sorted, whitespace-free JSON
// encoding used as the unique preimage for every signature and hash in the
// protocol. Two semantically equal JSON values (same keys, same values,
// any key order or whitespace) always collapse to the same canonical byte
// string, which is what lets a signature survive transport and
// re-serialization by a different JSON library on the other side.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v into canonical JSON: object keys sorted lexicographically
// at every nesting depth, no insignificant whitespace, and numbers/strings
// escaped exactly as encoding/json would escape them. v is first round-tripped
// through encoding/json so struct tags, omitempty and custom MarshalJSON
// methods are honored before canonicalization.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return MarshalRaw(raw)
}

// MarshalRaw re-encodes an arbitrary JSON document into canonical form.
func MarshalRaw(raw []byte) ([]byte, error) {
	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the SHA-256 digest of v's canonical JSON encoding.
func Hash(v interface{}) ([32]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// HashRaw returns the SHA-256 digest of an already-serialized JSON
// document's canonical form.
func HashRaw(raw []byte) ([32]byte, error) {
	b, err := MarshalRaw(raw)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonical: encode string: %w", err)
		}
		buf.Write(encoded)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical: encode key: %w", err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// Equal reports whether two JSON documents are equal under canonicalization,
// regardless of key order or formatting.
func Equal(a, b []byte) (bool, error) {
	ca, err := MarshalRaw(a)
	if err != nil {
		return false, err
	}
	cb, err := MarshalRaw(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
