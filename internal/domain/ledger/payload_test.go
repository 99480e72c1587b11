package ledger

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePayloadTaggedSimple(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"kind":"SIMPLE","hash":"aa11"}`))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Kind != PayloadSimple || payload.Hash != "aa11" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParsePayloadTaggedSimpleRequiresHash(t *testing.T) {
	_, err := ParsePayload([]byte(`{"kind":"SIMPLE"}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload, got %v", err)
	}
}

func TestParsePayloadTaggedComplex(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"kind":"COMPLEX","formHash":"ff00","fileHash":"ab","ipfsHash":"Qm1"}`))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Kind != PayloadComplex || payload.FormHash != "ff00" || payload.FileHash != "ab" || payload.IPFSHash != "Qm1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParsePayloadInfersKindFromUntagged(t *testing.T) {
	simple, err := ParsePayload([]byte(`{"hash":"aa11"}`))
	if err != nil {
		t.Fatalf("parse simple: %v", err)
	}
	if simple.Kind != PayloadSimple {
		t.Fatalf("want inferred SIMPLE, got %q", simple.Kind)
	}

	complexPayload, err := ParsePayload([]byte(`{"formHash":"ff00","fileHash":"ab"}`))
	if err != nil {
		t.Fatalf("parse complex: %v", err)
	}
	if complexPayload.Kind != PayloadComplex {
		t.Fatalf("want inferred COMPLEX, got %q", complexPayload.Kind)
	}
}

func TestParsePayloadRejectsNeitherShape(t *testing.T) {
	_, err := ParsePayload([]byte(`{"something":"else"}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload, got %v", err)
	}
}

func TestParsePayloadRejectsUnknownKind(t *testing.T) {
	_, err := ParsePayload([]byte(`{"kind":"WEIRD","hash":"aa"}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload, got %v", err)
	}
}

func TestComparableHashLegacyPrefersHashOverFormHash(t *testing.T) {
	var payload HashPayload
	if err := json.Unmarshal([]byte(`{"hash":"aa11","formHash":"bb22"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.IsLegacy() {
		t.Fatalf("want legacy payload, got %+v", payload)
	}

	hash, err := payload.ComparableHash()
	if err != nil {
		t.Fatalf("comparable hash: %v", err)
	}
	if hash != "aa11" {
		t.Fatalf("want hash field to win, got %q", hash)
	}
}

func TestComparableHashLegacyFallsBackToFormHash(t *testing.T) {
	var payload HashPayload
	if err := json.Unmarshal([]byte(`{"formHash":"bb22","fileHash":"cc"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	hash, err := payload.ComparableHash()
	if err != nil {
		t.Fatalf("comparable hash: %v", err)
	}
	if hash != "bb22" {
		t.Fatalf("want formHash, got %q", hash)
	}
}

func TestComparableHashUnparseableLegacy(t *testing.T) {
	var payload HashPayload
	if err := json.Unmarshal([]byte(`"just a string"`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	_, err := payload.ComparableHash()
	if !errors.Is(err, ErrUnparseablePayload) {
		t.Fatalf("want ErrUnparseablePayload, got %v", err)
	}
}

func TestLegacyPayloadRoundTripsVerbatim(t *testing.T) {
	raw := []byte(`{"hash":"aa11","formHash":"bb22","extra":42}`)

	var payload HashPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("legacy payload changed on round trip: %s", out)
	}
}

func TestTaggedPayloadRoundTrip(t *testing.T) {
	original := ComplexPayload("ff00", "ab", "Qm1")

	out, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded HashPayload
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("payload changed on round trip: %+v vs %+v", decoded, original)
	}
}
