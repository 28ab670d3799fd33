package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Covenant/internal/domain"
)

// TaskRepo — репозиторий для работы с задачами.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create создаёт новую задачу. Повторный idempotency key
// возвращает ErrDuplicate.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (id, workflow_type, company, policy, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.WorkflowType,
		nullString(task.Company),
		nullString(task.Policy),
		task.Status,
		nullString(task.IdempotencyKey),
		task.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := taskSelect + ` WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает задачу по ключу идемпотентности.
func (r *TaskRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Task, error) {
	query := taskSelect + ` WHERE idempotency_key = $1`
	return scanTask(r.pool.QueryRow(ctx, query, key))
}

// List возвращает список задач с фильтрацией.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	query := taskSelect + `
		WHERE ($1::text IS NULL OR workflow_type = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.WorkflowType)),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListPending возвращает задачи в статусе PENDING в порядке создания.
func (r *TaskRepo) ListPending(ctx context.Context, limit int) ([]domain.Task, error) {
	query := taskSelect + `
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Update обновляет изменяемые поля задачи.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	var outputJSON []byte
	if task.Output != nil {
		var err error
		outputJSON, err = json.Marshal(task.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	}

	query := `
		UPDATE tasks
		SET status = $2, instance_id = $3, output = $4, error = $5,
		    started_at = $6, finished_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.InstanceID,
		outputJSON,
		nullString(task.Error),
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// TaskFilter — параметры фильтрации задач.
type TaskFilter struct {
	WorkflowType domain.WorkflowType
	Status       domain.TaskStatus
	Limit        int
	Offset       int
}

const taskSelect = `
	SELECT id, workflow_type, company, policy, status, instance_id,
	       output, error, idempotency_key, started_at, finished_at, created_at
	FROM tasks
`

// scanTask сканирует одну строку в Task.
func scanTask(row pgx.Row) (*domain.Task, error) {
	task, err := scanTaskFields(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// scanTaskFields сканирует поля задачи из строки результата.
func scanTaskFields(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var company, policy, taskError, idempotencyKey *string
	var outputJSON []byte

	err := row.Scan(
		&task.ID,
		&task.WorkflowType,
		&company,
		&policy,
		&task.Status,
		&task.InstanceID,
		&outputJSON,
		&taskError,
		&idempotencyKey,
		&task.StartedAt,
		&task.FinishedAt,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &task.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}

	if company != nil {
		task.Company = *company
	}
	if policy != nil {
		task.Policy = *policy
	}
	if taskError != nil {
		task.Error = *taskError
	}
	if idempotencyKey != nil {
		task.IdempotencyKey = *idempotencyKey
	}

	return &task, nil
}

// collectTasks собирает все строки результата.
func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTaskFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation распознаёт нарушение уникального индекса.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
