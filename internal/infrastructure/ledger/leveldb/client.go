package levelledger

import (
	"context"

	"medledger/internal/domain/ledger"
	"medledger/internal/ports"
)

// Client invokes the hash ledger contract through the embedded platform.
// Writes go through Submit (ordered, conflict-checked); queries go through
// Evaluate and never stage writes.
type Client struct {
	platform *Platform
	contract ledger.Contract
}

var _ ports.Ledger = (*Client)(nil)

func NewClient(platform *Platform) *Client {
	return &Client{platform: platform}
}

func (c *Client) StoreHash(ctx context.Context, in ports.StoreHashInput) (ports.StoreHashResult, error) {
	var record *ledger.RecordHash
	result, err := c.platform.Submit(ctx, func(state ledger.State) error {
		stored, err := c.contract.StoreHash(state, ledger.StoreInput{
			RecordID:    in.RecordID,
			PatientID:   in.PatientID,
			PayloadJSON: in.PayloadJSON,
			RecordType:  in.RecordType.String(),
			CreatedBy:   in.CreatedBy,
			Timestamp:   in.Timestamp,
		})
		if err != nil {
			return err
		}
		record = stored
		return nil
	})
	if err != nil {
		return ports.StoreHashResult{}, err
	}

	return ports.StoreHashResult{
		TxID:       result.TxID,
		LedgerKey:  ledger.DirectKey(record.RecordType, record.RecordID),
		CommitTime: result.CommitTime,
	}, nil
}

func (c *Client) GetHash(ctx context.Context, recordType ledger.RecordType, recordID string) (*ledger.RecordHash, error) {
	var record *ledger.RecordHash
	err := c.platform.Evaluate(ctx, func(state ledger.State) error {
		found, err := c.contract.GetHash(state, recordID, recordType)
		if err != nil {
			return err
		}
		record = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Client) GetHistory(ctx context.Context, recordType ledger.RecordType, recordID string) ([]ledger.HistoryEntry, error) {
	var entries []ledger.HistoryEntry
	err := c.platform.Evaluate(ctx, func(state ledger.State) error {
		found, err := c.contract.GetHistory(state, recordID, recordType)
		if err != nil {
			return err
		}
		entries = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) GetByPatient(ctx context.Context, patientID int) ([]ledger.RecordHash, error) {
	var records []ledger.RecordHash
	err := c.platform.Evaluate(ctx, func(state ledger.State) error {
		found, err := c.contract.GetByPatient(state, patientID)
		if err != nil {
			return err
		}
		records = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) GetByType(ctx context.Context, recordType ledger.RecordType) ([]ledger.RecordHash, error) {
	var records []ledger.RecordHash
	err := c.platform.Evaluate(ctx, func(state ledger.State) error {
		found, err := c.contract.GetByType(state, recordType)
		if err != nil {
			return err
		}
		records = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) VerifyHash(ctx context.Context, recordType ledger.RecordType, recordID string, providedHash string) (bool, error) {
	var match bool
	err := c.platform.Evaluate(ctx, func(state ledger.State) error {
		ok, err := c.contract.VerifyHash(state, recordID, recordType, providedHash)
		if err != nil {
			return err
		}
		match = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return match, nil
}
