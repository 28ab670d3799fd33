package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Имена entities.
const (
	EntityRateLimiter    = "ratelimiter"
	EntityCircuitBreaker = "circuitbreaker"
)

// Handler — реализация одной entity.
//
// Apply применяет операцию к сериализованному состоянию и возвращает
// новое состояние вместе с результатом. state == nil означает,
// что entity создаётся лениво при первом обращении.
type Handler interface {
	Apply(op string, state []byte, input any) (newState []byte, result any, err error)
}

// Store — хранилище состояний entities.
//
// Get возвращает (nil, nil), если состояние ещё не создано.
type Store interface {
	Get(ctx context.Context, entity, key string) ([]byte, error)
	Put(ctx context.Context, entity, key string, state []byte) error
}

// Host выполняет операции entities с сериализацией по ключу.
//
// Гарантия single-writer-per-key: операции против одного (entity, key)
// выполняются строго последовательно. Это единственное, что защищает
// счётчик токенов и strikes от гонок — сами handlers локов не держат.
type Host struct {
	store    Store
	logger   *slog.Logger
	handlers map[string]Handler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// HostConfig — конфигурация Host.
type HostConfig struct {
	Store  Store
	Logger *slog.Logger
}

// NewHost создаёт Host с зарегистрированными entities системы.
func NewHost(cfg HostConfig) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}

	return &Host{
		store:  store,
		logger: logger,
		handlers: map[string]Handler{
			EntityRateLimiter:    &RateLimiter{},
			EntityCircuitBreaker: &CircuitBreaker{},
		},
		locks: make(map[string]*sync.Mutex),
	}
}

// Call выполняет операцию против entity с данным ключом.
//
// Загрузка состояния, применение операции и сохранение выполняются
// под per-key мьютексом.
func (h *Host) Call(ctx context.Context, entity, key, op string, input any) (any, error) {
	handler, ok := h.handlers[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	lock := h.keyLock(entity, key)
	lock.Lock()
	defer lock.Unlock()

	state, err := h.store.Get(ctx, entity, key)
	if err != nil {
		return nil, fmt.Errorf("load entity state %s/%s: %w", entity, key, err)
	}

	newState, result, err := handler.Apply(op, state, input)
	if err != nil {
		return nil, fmt.Errorf("apply %s on %s/%s: %w", op, entity, key, err)
	}

	if err := h.store.Put(ctx, entity, key, newState); err != nil {
		return nil, fmt.Errorf("persist entity state %s/%s: %w", entity, key, err)
	}

	h.logger.Debug("entity operation applied",
		"entity", entity,
		"key", key,
		"operation", op,
	)

	return result, nil
}

// keyLock возвращает мьютекс для (entity, key), создавая его лениво.
func (h *Host) keyLock(entity, key string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := entity + "/" + key
	lock, ok := h.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[id] = lock
	}
	return lock
}

// MemoryStore — in-memory реализация Store для тестов и локального запуска.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Get возвращает состояние entity или (nil, nil).
func (s *MemoryStore) Get(_ context.Context, entity, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[entity+"/"+key], nil
}

// Put сохраняет состояние entity.
func (s *MemoryStore) Put(_ context.Context, entity, key string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entity+"/"+key] = state
	return nil
}
