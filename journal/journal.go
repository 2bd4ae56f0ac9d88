// Package journal keeps the signed activity envelopes of in-flight shipments
// in an embedded badger store until they are exported as an artifact.
package journal

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/signer"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "activity/"

// Journal stores envelopes per shipment. Envelopes are write-once.
type Journal struct {
	db     *badger.DB
	logger cmtlog.Logger
}

type badgerLogger struct {
	logger cmtlog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the journal at dir. An empty dir opens an in-memory journal.
func Open(dir string, logger cmtlog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger.With("module", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Internal("JOURNAL_OPEN_FAILED", "Failed to open activity journal", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// shipmentPrefix hex-encodes the id so no shipment's prefix is a prefix of
// another's.
func shipmentPrefix(shipmentID string) []byte {
	return []byte(keyPrefix + hex.EncodeToString([]byte(shipmentID)) + "/")
}

func entryKey(shipmentID, key string) []byte {
	return append(shipmentPrefix(shipmentID), key...)
}

// Put stores env under key for shipmentID. Storing a second envelope under
// the same key is a contract violation.
func (j *Journal) Put(shipmentID, key string, env signer.Envelope) error {
	if shipmentID == "" || key == "" {
		return apperr.ContractViolation("JOURNAL_KEY_MISSING", "Shipment id and key are required", nil)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return apperr.Internal("JOURNAL_ENCODE_FAILED", "Failed to encode envelope", err)
	}

	k := entryKey(shipmentID, key)
	err = j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return apperr.ContractViolation("JOURNAL_DUPLICATE", "Envelope already recorded", nil).
				WithDetail("shipment=%s key=%s", shipmentID, key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, value)
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return err
		}
		return apperr.Internal("JOURNAL_WRITE_FAILED", "Failed to record envelope", err)
	}
	return nil
}

// Get returns one envelope.
func (j *Journal) Get(shipmentID, key string) (*signer.Envelope, bool, error) {
	var env signer.Envelope
	found := false
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(shipmentID, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		return nil, false, apperr.Internal("JOURNAL_READ_FAILED", "Failed to read envelope", err)
	}
	if !found {
		return nil, false, nil
	}
	return &env, true, nil
}

// List returns every envelope recorded for shipmentID, keyed by artifact key.
func (j *Journal) List(shipmentID string) (map[string]signer.Envelope, error) {
	out := make(map[string]signer.Envelope)
	prefix := shipmentPrefix(shipmentID)
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), prefix))
			err := item.Value(func(val []byte) error {
				var env signer.Envelope
				if err := json.Unmarshal(val, &env); err != nil {
					return err
				}
				out[key] = env
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal("JOURNAL_READ_FAILED", "Failed to list envelopes", err)
	}
	return out, nil
}

// Export writes every envelope of shipmentID to path as an indented JSON object.
func (j *Journal) Export(shipmentID, path string) error {
	entries, err := j.List(shipmentID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return apperr.Internal("ARTIFACT_ENCODE_FAILED", "Failed to encode activity artifact", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Internal("ARTIFACT_WRITE_FAILED", "Failed to create artifact directory", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return apperr.Internal("ARTIFACT_WRITE_FAILED", "Failed to write activity artifact", err)
	}
	j.logger.Info("Exported activity artifact", "shipment_id", shipmentID, "entries", len(entries), "path", path)
	return nil
}

// Discard drops every envelope of shipmentID.
func (j *Journal) Discard(shipmentID string) error {
	prefix := shipmentPrefix(shipmentID)
	err := j.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Internal("JOURNAL_DISCARD_FAILED", "Failed to discard envelopes", err)
	}
	return nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}
