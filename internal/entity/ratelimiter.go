package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Covenant/internal/domain"
)

// Операции RateLimiter.
const (
	OpTryAcquire = "TRY_ACQUIRE"
)

// TryAcquireInput — вход операции TRY_ACQUIRE.
//
// Now передаётся вызывающей стороной (replay-safe снапшот часов
// оркестратора): entity остаётся чистой функцией состояния и входа
// и не читает реальные часы.
type TryAcquireInput struct {
	RateLimitRPM    int           `json:"rate_limit_rpm"`
	RateLimitPeriod time.Duration `json:"rate_limit_period"`
	Now             time.Time     `json:"now"`
}

// RateLimiter — token bucket на тип workflow.
//
// Bucket наполняется целиком раз в период ("full or empty", не leaky):
// задача прямо перед и прямо после границы окна может получить
// 2*rpm токенов за короткий промежуток. Это осознанное упрощение,
// а не баг.
type RateLimiter struct{}

// Apply применяет операцию к состоянию.
func (rl *RateLimiter) Apply(op string, state []byte, input any) ([]byte, any, error) {
	if op != OpTryAcquire {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	in, ok := input.(TryAcquireInput)
	if !ok {
		return nil, nil, fmt.Errorf("%w: expected TryAcquireInput, got %T", ErrInvalidInput, input)
	}

	s, err := loadRateLimiterState(state, in.RateLimitRPM)
	if err != nil {
		return nil, nil, err
	}

	acquired := tryAcquire(&s, in)

	newState, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rate limiter state: %w", err)
	}

	return newState, acquired, nil
}

// tryAcquire — алгоритм token bucket.
//
//  1. Первое обращение: bucket полный, refill-якорь = Now, токен выдаётся.
//  2. Прошёл период: полный refill, якорь сдвигается.
//  3. Токены есть: декремент, выдано.
//  4. Токенов нет: отказ, вызывающий ждёт throttle_delay и повторяет.
func tryAcquire(s *domain.RateLimiterState, in TryAcquireInput) bool {
	if s.LastRefill == nil {
		now := in.Now
		s.Tokens = in.RateLimitRPM
		s.LastRefill = &now
	} else if in.Now.Sub(*s.LastRefill) >= in.RateLimitPeriod {
		now := in.Now
		s.Tokens = in.RateLimitRPM
		s.LastRefill = &now
	}

	if s.Tokens > 0 {
		s.Tokens--
		return true
	}
	return false
}

// loadRateLimiterState десериализует состояние, создавая начальное
// (полный bucket, refill не инициализирован) при первом обращении.
func loadRateLimiterState(state []byte, rpm int) (domain.RateLimiterState, error) {
	if state == nil {
		return domain.RateLimiterState{Tokens: rpm}, nil
	}

	var s domain.RateLimiterState
	if err := json.Unmarshal(state, &s); err != nil {
		return s, fmt.Errorf("unmarshal rate limiter state: %w", err)
	}
	return s, nil
}
