package levelledger

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/syndtr/goleveldb/leveldb/util"

	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
)

// txState is the per-invocation view handed to the contract. Reads see
// committed state plus this transaction's own staged writes; the version of
// every touched key is observed for commit-time validation.
type txState struct {
	platform   *Platform
	txID       string
	commitTime string
	readOnly   bool

	observed   map[string]uint64
	staged     map[string][]byte
	writeOrder []string
}

var _ ledger.State = (*txState)(nil)

func (s *txState) TxID() string { return s.txID }

func (s *txState) Get(key string) ([]byte, error) {
	if value, ok := s.staged[key]; ok {
		return value, nil
	}

	envelope, err := s.platform.readEnvelope(key)
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		s.observe(key, 0)
		return nil, nil
	}
	s.observe(key, envelope.Version)
	return envelope.Value, nil
}

func (s *txState) Put(key string, value []byte) error {
	if s.readOnly {
		return errors.New("put is not allowed in a read-only invocation")
	}
	if key == "" {
		return errors.New("ledger key is required")
	}

	if _, seen := s.observed[key]; !seen {
		version, err := s.platform.currentVersion(key)
		if err != nil {
			return err
		}
		s.observe(key, version)
	}

	if _, staged := s.staged[key]; !staged {
		s.writeOrder = append(s.writeOrder, key)
	}
	s.staged[key] = append([]byte(nil), value...)
	return nil
}

func (s *txState) History(key string) ([]ledger.KeyVersion, error) {
	iter := s.platform.db.NewIterator(historyRange(key), nil)
	defer iter.Release()

	var versions []ledger.KeyVersion
	for iter.Next() {
		var envelope historyEnvelope
		if err := json.Unmarshal(iter.Value(), &envelope); err != nil {
			return nil, errs.Wrapf(err, "decode history entry %q", string(iter.Key()))
		}
		versions = append(versions, ledger.KeyVersion{
			TxID:       envelope.TxID,
			CommitTime: envelope.CommitTime,
			Value:      append([]byte(nil), envelope.Value...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrapf(err, "iterate history %q", key)
	}
	return versions, nil
}

func (s *txState) Scan(prefix string) ([]ledger.KeyValue, error) {
	iter := s.platform.db.NewIterator(util.BytesPrefix([]byte(statePrefix+prefix)), nil)
	defer iter.Release()

	var entries []ledger.KeyValue
	for iter.Next() {
		var envelope stateEnvelope
		if err := json.Unmarshal(iter.Value(), &envelope); err != nil {
			return nil, errs.Wrapf(err, "decode state entry %q", string(iter.Key()))
		}
		entries = append(entries, ledger.KeyValue{
			Key:   strings.TrimPrefix(string(iter.Key()), statePrefix),
			Value: append([]byte(nil), envelope.Value...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrapf(err, "iterate prefix %q", prefix)
	}
	return entries, nil
}

// Query scans current primary-state entries (index entries live under the
// composite-key namespace and are skipped) and matches the selector against
// top-level fields of the decoded document.
func (s *txState) Query(selector map[string]any) ([][]byte, error) {
	iter := s.platform.db.NewIterator(util.BytesPrefix([]byte(statePrefix)), nil)
	defer iter.Release()

	var results [][]byte
	for iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), statePrefix)
		if strings.HasPrefix(key, "\x00") {
			continue
		}

		var envelope stateEnvelope
		if err := json.Unmarshal(iter.Value(), &envelope); err != nil {
			return nil, errs.Wrapf(err, "decode state entry %q", key)
		}

		var doc map[string]any
		if err := json.Unmarshal(envelope.Value, &doc); err != nil {
			continue
		}
		if matchesSelector(doc, selector) {
			results = append(results, append([]byte(nil), envelope.Value...))
		}
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(err, "iterate state for query")
	}
	return results, nil
}

func (s *txState) observe(key string, version uint64) {
	if _, seen := s.observed[key]; !seen {
		s.observed[key] = version
	}
}

func matchesSelector(doc map[string]any, selector map[string]any) bool {
	for field, want := range selector {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if !looselyEqual(got, want) {
			return false
		}
	}
	return true
}

// looselyEqual compares JSON-decoded values against native selector values;
// decoded numbers arrive as float64 regardless of how they were written.
func looselyEqual(got, want any) bool {
	switch w := want.(type) {
	case int:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case int64:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case float64:
		f, ok := got.(float64)
		return ok && f == w
	default:
		return got == want
	}
}
