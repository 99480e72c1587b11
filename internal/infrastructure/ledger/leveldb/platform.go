// Package levelledger hosts the hash ledger contract on an embedded LevelDB
// store. It supplies what the contract expects from a ledger platform:
// ordered transactions with platform-assigned ids, atomic multi-key commits,
// optimistic concurrency with read/write-set validation, and native per-key
// history.
package levelledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"medledger/internal/domain/ledger"
	"medledger/internal/errs"
)

const (
	statePrefix   = "s!"
	historyPrefix = "h!"
)

// stateEnvelope wraps every current-state value with its version counter and
// the transaction that committed it. Value is opaque to the platform: the
// contract may stage bytes that are not JSON (index entries hold a bare key),
// so it must not be typed as a raw JSON message.
type stateEnvelope struct {
	Version    uint64 `json:"version"`
	TxID       string `json:"txId"`
	CommitTime string `json:"commitTime"`
	Value      []byte `json:"value"`
}

type historyEnvelope struct {
	TxID       string `json:"txId"`
	CommitTime string `json:"commitTime"`
	Value      []byte `json:"value"`
}

// Platform owns the LevelDB handle and the commit ordering. One Platform is
// the single writer for its data directory.
type Platform struct {
	db *leveldb.DB

	// commitMu serializes validate+commit so each ordering round has at most
	// one winning write per key.
	commitMu sync.Mutex
}

// Open opens (or creates) the ledger data directory.
func Open(path string) (*Platform, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errs.Wrapf(err, "open ledger store %q", path)
	}
	return &Platform{db: db}, nil
}

func (p *Platform) Close() error {
	return p.db.Close()
}

// SubmitResult reports a committed transaction.
type SubmitResult struct {
	TxID       string
	CommitTime string
}

// Submit runs one contract invocation as a write transaction. The invocation
// simulates against current state while recording the version of every key it
// touches; at commit the versions are revalidated under the commit lock and
// all staged writes go into a single batch. A version that moved since
// simulation fails the submit with ledger.ErrWriteConflict.
func (p *Platform) Submit(ctx context.Context, invoke func(ledger.State) error) (SubmitResult, error) {
	if ctx == nil {
		return SubmitResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, errs.Wrap(err, "check context")
	}

	tx := &txState{
		platform:   p,
		txID:       uuid.NewString(),
		commitTime: time.Now().UTC().Format(time.RFC3339Nano),
		observed:   make(map[string]uint64),
		staged:     make(map[string][]byte),
	}

	if err := invoke(tx); err != nil {
		return SubmitResult{}, err
	}
	if len(tx.writeOrder) == 0 {
		return SubmitResult{TxID: tx.txID, CommitTime: tx.commitTime}, nil
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	for key, version := range tx.observed {
		current, err := p.currentVersion(key)
		if err != nil {
			return SubmitResult{}, err
		}
		if current != version {
			return SubmitResult{}, fmt.Errorf("%w: key %q moved from version %d to %d", ledger.ErrWriteConflict, key, version, current)
		}
	}

	batch := new(leveldb.Batch)
	for _, key := range tx.writeOrder {
		value := tx.staged[key]
		next := tx.observed[key] + 1

		envelope, err := json.Marshal(stateEnvelope{
			Version:    next,
			TxID:       tx.txID,
			CommitTime: tx.commitTime,
			Value:      value,
		})
		if err != nil {
			return SubmitResult{}, errs.Wrap(err, "marshal state envelope")
		}
		batch.Put(stateKey(key), envelope)

		historyValue, err := json.Marshal(historyEnvelope{
			TxID:       tx.txID,
			CommitTime: tx.commitTime,
			Value:      value,
		})
		if err != nil {
			return SubmitResult{}, errs.Wrap(err, "marshal history envelope")
		}
		batch.Put(historyKey(key, next), historyValue)
	}

	if err := p.db.Write(batch, nil); err != nil {
		return SubmitResult{}, errs.Wrap(err, "commit ledger batch")
	}
	return SubmitResult{TxID: tx.txID, CommitTime: tx.commitTime}, nil
}

// Evaluate runs a read-only contract invocation against committed state.
func (p *Platform) Evaluate(ctx context.Context, invoke func(ledger.State) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	return invoke(&txState{
		platform: p,
		readOnly: true,
		observed: make(map[string]uint64),
		staged:   make(map[string][]byte),
	})
}

func (p *Platform) currentVersion(key string) (uint64, error) {
	envelope, err := p.readEnvelope(key)
	if err != nil {
		return 0, err
	}
	if envelope == nil {
		return 0, nil
	}
	return envelope.Version, nil
}

func (p *Platform) readEnvelope(key string) (*stateEnvelope, error) {
	raw, err := p.db.Get(stateKey(key), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrapf(err, "read state %q", key)
	}

	var envelope stateEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errs.Wrapf(err, "decode state envelope %q", key)
	}
	return &envelope, nil
}

func stateKey(key string) []byte {
	return []byte(statePrefix + key)
}

// historyKey hex-encodes the ledger key so the sequence separator can never
// collide with bytes of the key itself.
func historyKey(key string, version uint64) []byte {
	return []byte(fmt.Sprintf("%s%s!%016d", historyPrefix, hex.EncodeToString([]byte(key)), version))
}

func historyRange(key string) *util.Range {
	return util.BytesPrefix([]byte(historyPrefix + hex.EncodeToString([]byte(key)) + "!"))
}
