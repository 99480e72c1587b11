package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadKind is the discriminant between the two payload shapes.
type PayloadKind string

const (
	// PayloadSimple fingerprints form-only records: a single hash.
	PayloadSimple PayloadKind = "SIMPLE"
	// PayloadComplex fingerprints records with an attached file: a form hash
	// plus optional file hash and content address.
	PayloadComplex PayloadKind = "COMPLEX"
)

// HashPayload is the tagged variant stored per record.
//
// Entries written by this implementation always carry the Kind discriminant.
// Entries written before the discriminant existed are kept verbatim in legacy
// and read via best-effort probing: the simple shape is tried first, then the
// complex shape. A legacy payload with a non-empty "hash" field therefore
// always short-circuits comparison against "formHash", even when both are
// present. That precedence is part of the stored-data contract.
type HashPayload struct {
	Kind     PayloadKind
	Hash     string
	FormHash string
	FileHash string
	IPFSHash string

	// legacy holds the original bytes of an untagged payload so it round-trips
	// unchanged through store and history reads.
	legacy json.RawMessage
}

// SimplePayload builds the tagged form-only shape.
func SimplePayload(hash string) HashPayload {
	return HashPayload{Kind: PayloadSimple, Hash: hash}
}

// ComplexPayload builds the tagged file-bearing shape. fileHash and ipfsHash
// are opaque content identifiers computed by the external file pipeline and
// may be empty.
func ComplexPayload(formHash, fileHash, ipfsHash string) HashPayload {
	return HashPayload{
		Kind:     PayloadComplex,
		FormHash: formHash,
		FileHash: fileHash,
		IPFSHash: ipfsHash,
	}
}

type taggedPayload struct {
	Kind     PayloadKind `json:"kind,omitempty"`
	Hash     string      `json:"hash,omitempty"`
	FormHash string      `json:"formHash,omitempty"`
	FileHash string      `json:"fileHash,omitempty"`
	IPFSHash string      `json:"ipfsHash,omitempty"`
}

// ParsePayload validates caller-supplied payload JSON at store time.
//
// A payload with a Kind discriminant must satisfy that shape. An untagged
// object gets its kind inferred ("hash" field means SIMPLE, "formHash" means
// COMPLEX) so that every new write lands tagged; anything else is rejected.
func ParsePayload(raw []byte) (HashPayload, error) {
	var tagged taggedPayload
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return HashPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch tagged.Kind {
	case PayloadSimple:
		if tagged.Hash == "" {
			return HashPayload{}, fmt.Errorf("%w: simple payload requires hash", ErrInvalidPayload)
		}
		return SimplePayload(tagged.Hash), nil
	case PayloadComplex:
		if tagged.FormHash == "" {
			return HashPayload{}, fmt.Errorf("%w: complex payload requires formHash", ErrInvalidPayload)
		}
		return ComplexPayload(tagged.FormHash, tagged.FileHash, tagged.IPFSHash), nil
	case "":
		if tagged.Hash != "" {
			return SimplePayload(tagged.Hash), nil
		}
		if tagged.FormHash != "" {
			return ComplexPayload(tagged.FormHash, tagged.FileHash, tagged.IPFSHash), nil
		}
		return HashPayload{}, fmt.Errorf("%w: payload matches neither shape", ErrInvalidPayload)
	default:
		return HashPayload{}, fmt.Errorf("%w: unknown payload kind %q", ErrInvalidPayload, tagged.Kind)
	}
}

// ComparableHash extracts the hash a verification compares against.
func (p HashPayload) ComparableHash() (string, error) {
	switch p.Kind {
	case PayloadSimple:
		return p.Hash, nil
	case PayloadComplex:
		return p.FormHash, nil
	}

	// Legacy probe: simple shape first, then complex. An object with both
	// fields resolves to "hash".
	var simple struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(p.legacy, &simple); err == nil && simple.Hash != "" {
		return simple.Hash, nil
	}
	var complexShape struct {
		FormHash string `json:"formHash"`
	}
	if err := json.Unmarshal(p.legacy, &complexShape); err == nil {
		return complexShape.FormHash, nil
	}
	return "", ErrUnparseablePayload
}

// IsLegacy reports whether the payload was stored without a discriminant.
func (p HashPayload) IsLegacy() bool {
	return p.Kind == "" && len(p.legacy) > 0
}

func (p HashPayload) MarshalJSON() ([]byte, error) {
	if p.Kind == "" {
		if len(p.legacy) > 0 {
			return p.legacy, nil
		}
		return []byte("null"), nil
	}
	return json.Marshal(taggedPayload{
		Kind:     p.Kind,
		Hash:     p.Hash,
		FormHash: p.FormHash,
		FileHash: p.FileHash,
		IPFSHash: p.IPFSHash,
	})
}

func (p *HashPayload) UnmarshalJSON(raw []byte) error {
	var tagged taggedPayload
	if err := json.Unmarshal(raw, &tagged); err != nil {
		// Not an object (historic schema drift): keep verbatim, probe later.
		*p = HashPayload{legacy: append(json.RawMessage(nil), raw...)}
		return nil
	}

	switch tagged.Kind {
	case PayloadSimple, PayloadComplex:
		*p = HashPayload{
			Kind:     tagged.Kind,
			Hash:     tagged.Hash,
			FormHash: tagged.FormHash,
			FileHash: tagged.FileHash,
			IPFSHash: tagged.IPFSHash,
		}
	default:
		*p = HashPayload{legacy: append(json.RawMessage(nil), raw...)}
	}
	return nil
}

// Equal compares two payloads structurally.
func (p HashPayload) Equal(other HashPayload) bool {
	if p.Kind != other.Kind {
		return false
	}
	if p.Kind == "" {
		return bytes.Equal(p.legacy, other.legacy)
	}
	return p.Hash == other.Hash &&
		p.FormHash == other.FormHash &&
		p.FileHash == other.FileHash &&
		p.IPFSHash == other.IPFSHash
}
