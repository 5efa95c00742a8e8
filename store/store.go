// Package store is a durable key-value store for swap preferences and
// disposable-signer records, backed by goleveldb.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/maspnet/shieldswap/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "store").Logger()
}

const (
	// Namespace prefixes for the keyspace.
	prefsKey     = "shieldswap:prefs"
	signerPrefix = "shieldswap:signer:"
	recordPrefix = "shieldswap:swaptx:"
)

// IsNotFoundErr reports whether err is the underlying not-found error.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, dberrors.ErrNotFound)
}

// Preferences are the user selections that survive restarts. Amounts are
// deliberately not part of this.
type Preferences struct {
	AssetSymbolSell string `json:"asset_symbol_sell,omitempty"`
	AssetSymbolBuy  string `json:"asset_symbol_buy,omitempty"`
}

// Store wraps a LevelDB instance with the namespaced accessors the swap
// subsystem needs.
type Store struct {
	path string
	db   *goleveldb.DB
}

// Open opens (or creates) the database at path, recovering from a
// corrupted manifest when possible.
func Open(path string) (*Store, error) {
	options := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		DisableSeeksCompaction: true,
	}

	db, err := goleveldb.OpenFile(path, options)
	if dberrors.IsCorrupted(err) {
		log.Warn().Str("path", path).Msg("Database corrupted, recovering")
		db, err = goleveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("Store opened")
	return &Store{path: path, db: db}, nil
}

// OpenInMemory opens a store backed by volatile memory, for tests.
func OpenInMemory() (*Store, error) {
	db, err := goleveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{path: ":memory:", db: db}, nil
}

// Close flushes pending data and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database directory.
func (s *Store) Path() string {
	return s.path
}

// SavePreferences overwrites the persisted asset selections.
func (s *Store) SavePreferences(p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefsKey), data, nil)
}

// Preferences returns the persisted asset selections, or the zero value
// when nothing was saved yet.
func (s *Store) Preferences() (Preferences, error) {
	data, err := s.db.Get([]byte(prefsKey), nil)
	if IsNotFoundErr(err) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, err
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("corrupt preferences record: %w", err)
	}
	return p, nil
}

// PersistSigner durably records a disposable signer keyed by its address.
// Persisting the same signer twice is harmless.
func (s *Store) PersistSigner(signer models.DisposableSigner) error {
	data, err := json.Marshal(signer)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(signerPrefix+signer.Address), data, nil)
}

// ClearSigner deletes a disposable signer record. Clearing an address that
// was never persisted, or was already cleared, is a no-op.
func (s *Store) ClearSigner(address string) error {
	return s.db.Delete([]byte(signerPrefix+address), nil)
}

// HasSigner reports whether a signer record exists for address.
func (s *Store) HasSigner(address string) (bool, error) {
	return s.db.Has([]byte(signerPrefix+address), nil)
}

// Signers returns all persisted disposable signers. Used on startup to
// surface refund targets left behind by interrupted attempts.
func (s *Store) Signers() ([]models.DisposableSigner, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(signerPrefix)), nil)
	defer iter.Release()

	var signers []models.DisposableSigner
	for iter.Next() {
		var signer models.DisposableSigner
		if err := json.Unmarshal(iter.Value(), &signer); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping corrupt signer record")
			continue
		}
		signers = append(signers, signer)
	}
	return signers, iter.Error()
}

// SaveTransaction writes the swap transaction record emitted on broadcast.
func (s *Store) SaveTransaction(rec models.SwapTransactionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(recordPrefix+rec.Hash), data, nil)
}

// Transaction returns the record stored under hash.
func (s *Store) Transaction(hash string) (models.SwapTransactionRecord, error) {
	data, err := s.db.Get([]byte(recordPrefix+hash), nil)
	if err != nil {
		return models.SwapTransactionRecord{}, err
	}
	var rec models.SwapTransactionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SwapTransactionRecord{}, fmt.Errorf("corrupt transaction record: %w", err)
	}
	return rec, nil
}
