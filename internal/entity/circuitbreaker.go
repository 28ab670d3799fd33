package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
)

// Операции CircuitBreaker.
const (
	OpTrip      = "TRIP"
	OpReset     = "RESET"
	OpGetStatus = "GET_STATUS"
)

// TripInput — вход операции TRIP.
type TripInput struct {
	ErrorMessage string    `json:"error_message"`
	Now          time.Time `json:"now"`
}

// CircuitBreaker — счётчик strikes на тип workflow.
//
// Упрощённый breaker без half-open: бинарный переход closed → open
// после исчерпания strikes. Открытый breaker не восстанавливается
// по таймеру — системно падающий класс workflow возобновляет только
// явный RESET от оператора.
type CircuitBreaker struct{}

// Apply применяет операцию к состоянию.
//
// Все операции возвращают bool "healthy" (true = breaker закрыт,
// трафик разрешён).
func (cb *CircuitBreaker) Apply(op string, state []byte, input any) ([]byte, any, error) {
	s, err := loadCircuitBreakerState(state)
	if err != nil {
		return nil, nil, err
	}

	switch op {
	case OpTrip:
		in, ok := input.(TripInput)
		if !ok {
			return nil, nil, fmt.Errorf("%w: expected TripInput, got %T", ErrInvalidInput, input)
		}
		trip(&s, in)

	case OpReset:
		s = domain.NewCircuitBreakerState()

	case OpGetStatus:
		// Только чтение.

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	newState, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal circuit breaker state: %w", err)
	}

	return newState, s.Healthy(), nil
}

// trip уменьшает strikes (floor 0); при нуле breaker открывается
// и фиксирует ошибку. Открытый breaker остаётся открытым.
func trip(s *domain.CircuitBreakerState, in TripInput) {
	if s.IsOpen {
		return
	}

	s.Strikes--
	if s.Strikes <= 0 {
		s.Strikes = 0
		s.IsOpen = true
		s.ErrorMessage = in.ErrorMessage
		openedAt := in.Now
		s.OpenedAt = &openedAt
	}
}

// loadCircuitBreakerState десериализует состояние, создавая закрытое
// начальное состояние при первом обращении.
func loadCircuitBreakerState(state []byte) (domain.CircuitBreakerState, error) {
	if state == nil {
		return domain.NewCircuitBreakerState(), nil
	}

	var s domain.CircuitBreakerState
	if err := json.Unmarshal(state, &s); err != nil {
		return s, fmt.Errorf("unmarshal circuit breaker state: %w", err)
	}
	return s, nil
}
