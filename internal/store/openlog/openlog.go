// Package openlog keeps the append-only pack-opening ledger in LevelDB.
// Each draw writes exactly one record; records are never updated or deleted,
// so the log doubles as the audit trail for offline fairness verification.
package openlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
)

const keyPrefix = "openings/"

// Log is a LevelDB-backed draw.OpeningLog.
type Log struct {
	db *leveldb.DB
}

// Open opens (or creates) the opening ledger at path.
func Open(path string) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open opening ledger %q: %w", path, err)
	}
	return &Log{db: db}, nil
}

// Close flushes and closes the underlying database.
func (log *Log) Close() error {
	return log.db.Close()
}

// recordKey orders records per user by creation time. The uuid suffix keeps
// keys unique when two draws of one batch share a timestamp.
func recordKey(record draw.OpeningRecord) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", keyPrefix, record.UserID, record.CreatedUnixUTC, uuid.NewString()))
}

func userPrefix(userID string) []byte {
	return []byte(keyPrefix + userID + "/")
}

// Append writes one opening record.
func (log *Log) Append(_ context.Context, record draw.OpeningRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return log.db.Put(recordKey(record), encoded, nil)
}

// ListByUser returns a user's opening records in append order, up to limit.
// A non-positive limit returns everything.
func (log *Log) ListByUser(_ context.Context, userID string, limit int) ([]draw.OpeningRecord, error) {
	iterator := log.db.NewIterator(util.BytesPrefix(userPrefix(userID)), nil)
	defer iterator.Release()

	var records []draw.OpeningRecord
	for iterator.Next() {
		var record draw.OpeningRecord
		if err := json.Unmarshal(iterator.Value(), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	if err := iterator.Error(); err != nil {
		return nil, err
	}
	return records, nil
}
