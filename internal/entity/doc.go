// Package entity реализует durable entities — keyed state machines,
// доступные только через свои объявленные операции.
//
// Каждая операция — чистая функция (state, input) -> (new state, result).
// Host сериализует операции по ключу entity (single-writer-per-key):
// конкурентные вызовы от разных orchestration instances выстраиваются
// в очередь, а не гонятся за состоянием.
//
// Entities системы:
//   - ratelimiter — token bucket на тип workflow (операция TRY_ACQUIRE)
//   - circuitbreaker — счётчик strikes на тип workflow (TRIP/RESET/GET_STATUS)
package entity
