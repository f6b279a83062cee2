package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations shared by a pool and an open
// transaction, letting repositories run in either.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the repositories behind a single transactional
// boundary. WithinTx yields a Store whose repositories all run on the
// same transaction; the ticket locks are only valid inside one.
type Store interface {
	Tickets() TicketRepository
	Teams() TeamRepository
	Assignments() AssignmentRepository
	SLAConfigs() SLAConfigRepository

	// WithinTx runs fn inside a transaction, committing on nil and
	// rolling back on error. Nested calls join the open transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// TryTicketLock attempts the per-ticket advisory lock without
	// waiting. False means another worker holds it. Transaction-scoped:
	// the lock releases automatically at commit or rollback.
	TryTicketLock(ctx context.Context, ticketID string) (bool, error)

	// TicketLock blocks until the per-ticket advisory lock is held.
	TicketLock(ctx context.Context, ticketID string) error
}

type pgStore struct {
	pool *pgxpool.Pool
	q    Querier
	inTx bool
}

// NewStore wraps a pgx pool as a Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, q: pool}
}

func (s *pgStore) Tickets() TicketRepository         { return &ticketRepository{q: s.q} }
func (s *pgStore) Teams() TeamRepository             { return &teamRepository{q: s.q} }
func (s *pgStore) Assignments() AssignmentRepository { return &assignmentRepository{q: s.q} }
func (s *pgStore) SLAConfigs() SLAConfigRepository   { return &slaConfigRepository{q: s.q} }

func (s *pgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &pgStore{pool: s.pool, q: tx, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *pgStore) TryTicketLock(ctx context.Context, ticketID string) (bool, error) {
	if !s.inTx {
		return false, fmt.Errorf("ticket lock requires an open transaction")
	}
	classID, objID := ticketLockKeys(ticketID)
	var acquired bool
	err := s.q.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1,$2)`, classID, objID).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return acquired, nil
}

func (s *pgStore) TicketLock(ctx context.Context, ticketID string) error {
	if !s.inTx {
		return fmt.Errorf("ticket lock requires an open transaction")
	}
	classID, objID := ticketLockKeys(ticketID)
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1,$2)`, classID, objID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
