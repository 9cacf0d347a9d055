package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/pkg/types"
	"gorm.io/gorm"
)

type Store interface {
	ThresholdRepository
	ValueRepository
	AlertRepository

	// WithinTransaction runs fn against a store bound to a single database
	// transaction. Any error returned by fn rolls back everything fn wrote.
	WithinTransaction(ctx context.Context, fn func(tx Store) error, opts ...TxOption) error
	Close() error
}

type store struct {
	db *gorm.DB
}

func New(connect ConnectorFunc) (Store, error) {
	impl, log, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Threshold{}, &Value{}, &Alert{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	log.Debug().Str("dialect", impl.Dialector.Name()).Msg("database schema migrated")

	return &store{db: impl}, nil
}

type txConfig struct {
	snapshot bool
}

type TxOption func(*txConfig)

// WithSnapshot lets every statement in the transaction read from the same
// snapshot. Concurrent updates of rows locked inside such a transaction fail
// instead of waiting, so row locking writers should not use it.
func WithSnapshot() TxOption {
	return func(c *txConfig) {
		c.snapshot = true
	}
}

func (s *store) WithinTransaction(ctx context.Context, fn func(tx Store) error, opts ...TxOption) error {
	cfg := txConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	}, txOptions(s.db.Dialector.Name(), cfg)...)

	if err != nil && !isKnownKind(err) {
		return storageError(ctx, err, "transaction failed")
	}

	return err
}

// txOptions maps a snapshot request to repeatable read on postgres. Other
// transactions keep the read committed default, where a row lock waits for
// the current holder. sqlite transactions are serializable already.
func txOptions(dialect string, cfg txConfig) []*sql.TxOptions {
	if dialect == "postgres" && cfg.snapshot {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead}}
	}
	return nil
}

func (s *store) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

func isKnownKind(err error) bool {
	return errors.Is(err, types.ErrValidation) ||
		errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrReferentialIntegrity) ||
		errors.Is(err, types.ErrPersistence)
}

func storageError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, msg)
	}

	logger := logging.GetFromContext(ctx)
	logger.Error().Err(err).Msg(msg)

	return fmt.Errorf("%w: %s: %s", types.ErrPersistence, msg, err.Error())
}
