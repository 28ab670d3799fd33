package domain

import "time"

// InitialStrikes — количество strikes у закрытого circuit breaker.
const InitialStrikes = 3

// RateLimiterState — состояние token bucket одного типа workflow.
//
// Инвариант: 0 <= Tokens <= rate_limit_rpm.
// Состояние принадлежит исключительно RateLimiterEntity и изменяется
// только через операцию TRY_ACQUIRE.
type RateLimiterState struct {
	// Tokens — оставшиеся токены в текущем окне.
	Tokens int `json:"tokens"`

	// LastRefill — время последнего полного refill.
	// Nil до первого обращения.
	LastRefill *time.Time `json:"last_refill,omitempty"`
}

// CircuitBreakerState — состояние circuit breaker одного типа workflow.
//
// Инвариант: IsOpen == (Strikes == 0).
// Breaker бинарный: closed → open, без half-open. Открытый breaker
// закрывается только явным RESET (сигнал оператора), не по таймеру.
type CircuitBreakerState struct {
	// Strikes — оставшиеся strikes до открытия. Начинается с InitialStrikes.
	Strikes int `json:"strikes"`

	// IsOpen — true, если breaker открыт (трафик остановлен).
	IsOpen bool `json:"is_open"`

	// ErrorMessage — ошибка, вызвавшая открытие.
	ErrorMessage string `json:"error_message,omitempty"`

	// OpenedAt — время открытия.
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

// NewCircuitBreakerState возвращает закрытое начальное состояние.
func NewCircuitBreakerState() CircuitBreakerState {
	return CircuitBreakerState{Strikes: InitialStrikes}
}

// Healthy возвращает true, если breaker закрыт.
func (s CircuitBreakerState) Healthy() bool {
	return !s.IsOpen
}
