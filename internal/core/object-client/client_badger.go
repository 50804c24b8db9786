package objectclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const objectPrefix = "object/"

// BadgerClient keeps files in an embedded BadgerDB, for single-node deployments
// and local development without an object store.
type BadgerClient struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ core.ObjectClient = (*BadgerClient)(nil)

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// NewBadgerClient opens a store at dir. An empty dir opens an in-memory store.
func NewBadgerClient(dir string) (*BadgerClient, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "object-client")
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerClient{db: db, logger: logger}, nil
}

func (c *BadgerClient) Close() error {
	return c.db.Close()
}

func (c *BadgerClient) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(objectPrefix+key), buf)
	})
	if err != nil {
		return "", fmt.Errorf("badger put failed: %w", err)
	}
	return "badger://" + key, nil
}

func (c *BadgerClient) GetFile(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectPrefix + key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get failed: %w", err)
	}
	return out, nil
}

func (c *BadgerClient) DeleteFile(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(objectPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("badger delete failed: %w", err)
	}
	return nil
}
