// Package mq — обмен сообщениями через RabbitMQ: поток задач
// (tasks.pending → dispatcher → tasks.completed) и операторские
// сигналы сброса circuit breaker (signals.reset).
package mq
