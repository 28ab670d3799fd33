package durable

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus — runtime-статус orchestration instance.
//
// Жизненный цикл:
//
//	RUNNING ⇄ SUSPENDED → SUCCEEDED
//	                    ↘ FAILED
type InstanceStatus string

const (
	// InstanceRunning — instance исполняется или ждёт таймер.
	InstanceRunning InstanceStatus = "RUNNING"

	// InstanceSuspended — instance приостановлен на внешнем событии.
	InstanceSuspended InstanceStatus = "SUSPENDED"

	// InstanceSucceeded — orchestration завершилась успешно.
	InstanceSucceeded InstanceStatus = "SUCCEEDED"

	// InstanceFailed — orchestration завершилась с ошибкой.
	InstanceFailed InstanceStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceSucceeded || s == InstanceFailed
}

// InstanceInfo — наблюдаемое состояние instance.
type InstanceInfo struct {
	ID           uuid.UUID      `json:"id"`
	WorkflowType string         `json:"workflow_type"`
	Status       InstanceStatus `json:"status"`
	CustomStatus string         `json:"custom_status,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// InstanceRecord — персистентное представление instance вместе с журналом.
type InstanceRecord struct {
	ID           uuid.UUID         `json:"id"`
	WorkflowType string            `json:"workflow_type"`
	Status       InstanceStatus    `json:"status"`
	CustomStatus string            `json:"custom_status,omitempty"`
	Input        map[string]string `json:"input"`
	Output       map[string]any    `json:"output,omitempty"`
	Error        string            `json:"error,omitempty"`
	Journal      []Entry           `json:"journal,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Filter — параметры фильтрации instances.
type Filter struct {
	WorkflowType string
	Status       InstanceStatus
}

// Matches проверяет, подходит ли запись под фильтр.
func (f Filter) Matches(workflowType string, status InstanceStatus) bool {
	if f.WorkflowType != "" && f.WorkflowType != workflowType {
		return false
	}
	if f.Status != "" && f.Status != status {
		return false
	}
	return true
}

// InstanceStore — персистентное хранилище instances.
//
// Create — условная вставка: существующая запись с тем же ID даёт
// ErrInstanceAlreadyExists. Этим хранилище выступает арбитром
// запуска между процессами.
type InstanceStore interface {
	Create(ctx context.Context, rec *InstanceRecord) error
	Save(ctx context.Context, rec *InstanceRecord) error
	Get(ctx context.Context, id uuid.UUID) (*InstanceRecord, error)
	List(ctx context.Context, f Filter) ([]InstanceRecord, error)
}

// instance — живое состояние одного instance внутри runtime.
type instance struct {
	id           uuid.UUID
	workflowType string
	input        map[string]string
	createdAt    time.Time

	mu           sync.Mutex
	status       InstanceStatus
	customStatus string
	output       map[string]any
	err          string
	events       map[string]chan struct{}

	done chan struct{}
}

func newInstance(id uuid.UUID, workflowType string, input map[string]string) *instance {
	return &instance{
		id:           id,
		workflowType: workflowType,
		input:        input,
		createdAt:    time.Now(),
		status:       InstanceRunning,
		events:       make(map[string]chan struct{}),
		done:         make(chan struct{}),
	}
}

// info возвращает снимок наблюдаемого состояния.
func (in *instance) info() InstanceInfo {
	in.mu.Lock()
	defer in.mu.Unlock()
	return InstanceInfo{
		ID:           in.id,
		WorkflowType: in.workflowType,
		Status:       in.status,
		CustomStatus: in.customStatus,
		Output:       in.output,
		Error:        in.err,
	}
}

// record строит персистентную запись с текущим журналом.
func (in *instance) record(journal []Entry) *InstanceRecord {
	in.mu.Lock()
	defer in.mu.Unlock()
	return &InstanceRecord{
		ID:           in.id,
		WorkflowType: in.workflowType,
		Status:       in.status,
		CustomStatus: in.customStatus,
		Input:        in.input,
		Output:       in.output,
		Error:        in.err,
		Journal:      journal,
		CreatedAt:    in.createdAt,
		UpdatedAt:    time.Now(),
	}
}

func (in *instance) setStatus(s InstanceStatus) {
	in.mu.Lock()
	in.status = s
	in.mu.Unlock()
}

func (in *instance) setCustomStatus(s string) {
	in.mu.Lock()
	in.customStatus = s
	in.mu.Unlock()
}

// eventChannel возвращает буферизованный канал события.
// Буфер размера 1: событие, поднятое до того как instance начал ждать,
// не теряется.
func (in *instance) eventChannel(name string) chan struct{} {
	in.mu.Lock()
	defer in.mu.Unlock()

	ch, ok := in.events[name]
	if !ok {
		ch = make(chan struct{}, 1)
		in.events[name] = ch
	}
	return ch
}

// raise доставляет событие, не блокируясь: повторный сигнал того же
// события до потребления схлопывается.
func (in *instance) raise(name string) {
	ch := in.eventChannel(name)
	select {
	case ch <- struct{}{}:
	default:
	}
}

// finish фиксирует терминальное состояние.
func (in *instance) finish(output map[string]any, errMsg string) {
	in.mu.Lock()
	if errMsg != "" {
		in.status = InstanceFailed
		in.err = errMsg
	} else {
		in.status = InstanceSucceeded
		in.output = output
	}
	in.customStatus = ""
	in.mu.Unlock()

	close(in.done)
}

// MemoryInstanceStore — in-memory InstanceStore для тестов и
// локального запуска без БД.
type MemoryInstanceStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*InstanceRecord
}

// NewMemoryInstanceStore создаёт пустое хранилище.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{records: make(map[uuid.UUID]*InstanceRecord)}
}

// Create вставляет новую запись; занятый ID — ErrInstanceAlreadyExists.
func (s *MemoryInstanceStore) Create(_ context.Context, rec *InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return ErrInstanceAlreadyExists
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Save сохраняет запись.
func (s *MemoryInstanceStore) Save(_ context.Context, rec *InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Get возвращает запись или ErrInstanceNotFound.
func (s *MemoryInstanceStore) Get(_ context.Context, id uuid.UUID) (*InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	cp := *rec
	return &cp, nil
}

// List возвращает записи, подходящие под фильтр.
func (s *MemoryInstanceStore) List(_ context.Context, f Filter) ([]InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []InstanceRecord
	for _, rec := range s.records {
		if f.Matches(rec.WorkflowType, rec.Status) {
			out = append(out, *rec)
		}
	}
	return out, nil
}
