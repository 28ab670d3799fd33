package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// WorkflowType — класс задачи. Все задачи одного типа делят один
// rate limiter и один circuit breaker.
type WorkflowType string

// Типы workflow.
const (
	// WorkflowMeta — скрейпинг метаданных документа (etag, last-modified).
	WorkflowMeta WorkflowType = "meta"

	// WorkflowWebScraper — получение HTML-снапшота страницы политики.
	WorkflowWebScraper WorkflowType = "webscraper"

	// WorkflowScraper — вычисление diff между снапшотами.
	WorkflowScraper WorkflowType = "scraper"

	// WorkflowSummarizer — LLM-суммаризация изменений документа.
	WorkflowSummarizer WorkflowType = "summarizer"

	// WorkflowJudge — LLM-вердикт: существенно ли изменение для пользователя.
	WorkflowJudge WorkflowType = "judge"
)

// WorkflowTypes — все известные типы в фиксированном порядке.
func WorkflowTypes() []WorkflowType {
	return []WorkflowType{
		WorkflowMeta,
		WorkflowWebScraper,
		WorkflowScraper,
		WorkflowSummarizer,
		WorkflowJudge,
	}
}

// ParseWorkflowType парсит строку в WorkflowType.
func ParseWorkflowType(s string) (WorkflowType, error) {
	wt := WorkflowType(s)
	for _, known := range WorkflowTypes() {
		if wt == known {
			return wt, nil
		}
	}
	return "", fmt.Errorf("unknown workflow type: %q", s)
}

// WorkflowConfig — статическая конфигурация одного типа workflow.
//
// Управляет rate limiting (token bucket с полным refill), retry-политикой
// оркестратора и именем activity-процессора.
type WorkflowConfig struct {
	// RateLimitRPM — ёмкость token bucket. Bucket наполняется целиком
	// раз в RateLimitPeriod (не пропорционально).
	RateLimitRPM int

	// RateLimitPeriod — интервал полного refill bucket.
	RateLimitPeriod time.Duration

	// ThrottleDelay — пауза между попытками получить токен.
	ThrottleDelay time.Duration

	// ProcessorName — имя activity, которую вызывает оркестратор.
	ProcessorName string

	// MaxAttempts — количество попыток activity до trip circuit breaker.
	MaxAttempts int

	// RetryDelay — пауза между неудачными попытками activity.
	RetryDelay time.Duration
}

// DefaultConfigs возвращает конфигурацию по умолчанию для всех типов.
//
// Значения можно переопределить переменными окружения вида
// COVENANT_<TYPE>_RPM, COVENANT_<TYPE>_PERIOD_SEC, COVENANT_<TYPE>_MAX_ATTEMPTS.
func DefaultConfigs() map[WorkflowType]WorkflowConfig {
	configs := map[WorkflowType]WorkflowConfig{
		WorkflowMeta: {
			RateLimitRPM:    60,
			RateLimitPeriod: time.Minute,
			ThrottleDelay:   2 * time.Second,
			ProcessorName:   "scrape_metadata",
			MaxAttempts:     3,
			RetryDelay:      5 * time.Second,
		},
		WorkflowWebScraper: {
			RateLimitRPM:    30,
			RateLimitPeriod: time.Minute,
			ThrottleDelay:   2 * time.Second,
			ProcessorName:   "fetch_snapshot",
			MaxAttempts:     3,
			RetryDelay:      10 * time.Second,
		},
		WorkflowScraper: {
			RateLimitRPM:    120,
			RateLimitPeriod: time.Minute,
			ThrottleDelay:   time.Second,
			ProcessorName:   "diff_snapshots",
			MaxAttempts:     2,
			RetryDelay:      2 * time.Second,
		},
		WorkflowSummarizer: {
			RateLimitRPM:    10,
			RateLimitPeriod: time.Minute,
			ThrottleDelay:   5 * time.Second,
			ProcessorName:   "summarize_policy",
			MaxAttempts:     3,
			RetryDelay:      15 * time.Second,
		},
		WorkflowJudge: {
			RateLimitRPM:    10,
			RateLimitPeriod: time.Minute,
			ThrottleDelay:   5 * time.Second,
			ProcessorName:   "judge_change",
			MaxAttempts:     3,
			RetryDelay:      15 * time.Second,
		},
	}

	for wt, cfg := range configs {
		configs[wt] = applyEnvOverrides(wt, cfg)
	}

	return configs
}

// applyEnvOverrides применяет переопределения из окружения.
func applyEnvOverrides(wt WorkflowType, cfg WorkflowConfig) WorkflowConfig {
	prefix := "COVENANT_" + envName(wt)

	if v, ok := envInt(prefix + "_RPM"); ok {
		cfg.RateLimitRPM = v
	}
	if v, ok := envInt(prefix + "_PERIOD_SEC"); ok {
		cfg.RateLimitPeriod = time.Duration(v) * time.Second
	}
	if v, ok := envInt(prefix + "_MAX_ATTEMPTS"); ok {
		cfg.MaxAttempts = v
	}

	return cfg
}

// envName преобразует тип workflow в часть имени переменной окружения.
func envName(wt WorkflowType) string {
	name := make([]byte, 0, len(wt))
	for i := 0; i < len(wt); i++ {
		c := wt[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		name = append(name, c)
	}
	return string(name)
}

// envInt читает положительное целое из переменной окружения.
func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
