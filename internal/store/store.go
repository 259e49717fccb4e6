// Package store persists the history of closed WebSocket sessions.
// It uses GORM over the pure-Go SQLite driver, so no cgo is required.
// Writes are queued and applied by a single goroutine; the connection
// loops never wait on the database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/gatewatch/internal/models"
)

// Query limits for Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrClosed is returned by queries after Close.
var ErrClosed = errors.New("session store closed")

// Store records sessions asynchronously and answers history queries.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan models.Session
	drained chan struct{}
}

// Open opens (or creates) the database at path and starts the writer.
// queueSize bounds how many closed sessions may wait to be written.
func Open(path string, queueSize int, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across queries.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Session{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  log.With("component", "store"),
		queue:   make(chan models.Session, queueSize),
		drained: make(chan struct{}),
	}
	go s.writer()

	s.logger.Info("session store opened", "path", path)
	return s, nil
}

// Record queues a closed session for writing. It never blocks: when the
// queue is full the session is dropped.
func (s *Store) Record(sess models.Session) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- sess:
	default:
		s.logger.Debug("session queue full, dropping record", "conn_id", sess.ConnID)
	}
}

func (s *Store) writer() {
	defer close(s.drained)
	for sess := range s.queue {
		if err := s.db.Create(&sess).Error; err != nil {
			s.logger.Error("saving session failed", "conn_id", sess.ConnID, "error", err)
		}
	}
}

// Recent returns the most recently closed sessions, newest first.
// An empty server matches both servers. limit is clamped to
// [1, MaxLimit]; zero selects DefaultLimit.
func (s *Store) Recent(ctx context.Context, server models.ServerID, limit int) ([]models.Session, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	q := s.db.WithContext(ctx).Order("closed_at desc").Order("id desc").Limit(limit)
	if server != "" {
		q = q.Where("server = ?", server)
	}

	var out []models.Session
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	return out, nil
}

// Close stops accepting records, writes what is queued and closes the
// database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.drained

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
