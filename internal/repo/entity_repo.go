package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityRepo — хранилище состояний durable entities. Реализует
// entity.Store.
//
// Репозиторий не сериализует доступ: порядок операций против одного
// (entity, key) гарантирует per-key мьютекс entity host.
type EntityRepo struct {
	pool *pgxpool.Pool
}

// NewEntityRepo создаёт новый EntityRepo.
func NewEntityRepo(pool *pgxpool.Pool) *EntityRepo {
	return &EntityRepo{pool: pool}
}

// Get возвращает состояние entity или (nil, nil), если оно ещё
// не создано.
func (r *EntityRepo) Get(ctx context.Context, entity, key string) ([]byte, error) {
	query := `
		SELECT state
		FROM entity_states
		WHERE entity = $1 AND key = $2
	`
	var state []byte
	err := r.pool.QueryRow(ctx, query, entity, key).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select entity state: %w", err)
	}
	return state, nil
}

// Put сохраняет состояние entity (UPSERT).
func (r *EntityRepo) Put(ctx context.Context, entity, key string, state []byte) error {
	query := `
		INSERT INTO entity_states (entity, key, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (entity, key) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, entity, key, state); err != nil {
		return fmt.Errorf("upsert entity state: %w", err)
	}
	return nil
}
