package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Covenant/internal/durable"
)

// InstanceRepo — репозиторий orchestration instances. Реализует
// durable.InstanceStore: журнал хранится как JSONB рядом с инстансом,
// запись журнала и статуса атомарна (один UPSERT).
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

// Create вставляет новую запись instance. Конфликт ID означает, что
// instance уже был запущен этим или другим процессом —
// durable.ErrInstanceAlreadyExists, существующий журнал не трогается.
func (r *InstanceRepo) Create(ctx context.Context, rec *durable.InstanceRecord) error {
	inputJSON, outputJSON, journalJSON, err := marshalInstanceJSON(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO instances (id, workflow_type, status, custom_status, input,
		                       output, error, journal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.WorkflowType,
		rec.Status,
		nullString(rec.CustomStatus),
		inputJSON,
		outputJSON,
		nullString(rec.Error),
		journalJSON,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return durable.ErrInstanceAlreadyExists
	}
	return nil
}

// Save сохраняет запись instance вместе с журналом (UPSERT).
func (r *InstanceRepo) Save(ctx context.Context, rec *durable.InstanceRecord) error {
	inputJSON, outputJSON, journalJSON, err := marshalInstanceJSON(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO instances (id, workflow_type, status, custom_status, input,
		                       output, error, journal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    custom_status = EXCLUDED.custom_status,
		    output = EXCLUDED.output,
		    error = EXCLUDED.error,
		    journal = EXCLUDED.journal,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.WorkflowType,
		rec.Status,
		nullString(rec.CustomStatus),
		inputJSON,
		outputJSON,
		nullString(rec.Error),
		journalJSON,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}

// Get возвращает запись instance по ID.
func (r *InstanceRepo) Get(ctx context.Context, id uuid.UUID) (*durable.InstanceRecord, error) {
	query := instanceSelect + ` WHERE id = $1`

	rec, err := scanInstanceFields(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, durable.ErrInstanceNotFound
	}
	return rec, err
}

// List возвращает записи по фильтру.
func (r *InstanceRepo) List(ctx context.Context, f durable.Filter) ([]durable.InstanceRecord, error) {
	query := instanceSelect + `
		WHERE ($1::text IS NULL OR workflow_type = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(f.WorkflowType),
		nullString(string(f.Status)),
	)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var records []durable.InstanceRecord
	for rows.Next() {
		rec, err := scanInstanceFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListNonTerminal возвращает instances, которым нужен resume после
// рестарта процесса.
func (r *InstanceRepo) ListNonTerminal(ctx context.Context) ([]durable.InstanceRecord, error) {
	query := instanceSelect + `
		WHERE status NOT IN ('SUCCEEDED', 'FAILED')
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal instances: %w", err)
	}
	defer rows.Close()

	var records []durable.InstanceRecord
	for rows.Next() {
		rec, err := scanInstanceFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// --- Helpers ---

const instanceSelect = `
	SELECT id, workflow_type, status, custom_status, input,
	       output, error, journal, created_at, updated_at
	FROM instances
`

// marshalInstanceJSON сериализует JSONB-поля записи instance.
func marshalInstanceJSON(rec *durable.InstanceRecord) (input, output, journal []byte, err error) {
	if input, err = json.Marshal(rec.Input); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal input: %w", err)
	}
	if rec.Output != nil {
		if output, err = json.Marshal(rec.Output); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal output: %w", err)
		}
	}
	if rec.Journal != nil {
		if journal, err = json.Marshal(rec.Journal); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal journal: %w", err)
		}
	}
	return input, output, journal, nil
}

// scanInstanceFields сканирует поля instance из строки результата.
func scanInstanceFields(row pgx.Row) (*durable.InstanceRecord, error) {
	var rec durable.InstanceRecord
	var customStatus, recError *string
	var inputJSON, outputJSON, journalJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.WorkflowType,
		&rec.Status,
		&customStatus,
		&inputJSON,
		&outputJSON,
		&recError,
		&journalJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	if journalJSON != nil {
		if err := json.Unmarshal(journalJSON, &rec.Journal); err != nil {
			return nil, fmt.Errorf("unmarshal journal: %w", err)
		}
	}

	if customStatus != nil {
		rec.CustomStatus = *customStatus
	}
	if recError != nil {
		rec.Error = *recError
	}

	return &rec, nil
}
