package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskPending   MessageType = "task.pending"
	MessageTypeTaskCompleted MessageType = "task.completed"
	MessageTypeCircuitReset  MessageType = "circuit.reset"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskPendingPayload — payload для сообщения о новой задаче.
type TaskPendingPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskCompletedPayload — payload для сообщения о завершённой задаче.
type TaskCompletedPayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	InstanceID   uuid.UUID `json:"instance_id"`
	WorkflowType string    `json:"workflow_type"`
	Status       string    `json:"status"` // SUCCEEDED или FAILED
	Error        string    `json:"error,omitempty"`
}

// CircuitResetPayload — payload операторского сигнала сброса breaker.
type CircuitResetPayload struct {
	WorkflowType string `json:"workflow_type"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskPending публикует событие о новой задаче.
// Потребитель: Dispatcher.
func (p *Publisher) PublishTaskPending(ctx context.Context, taskID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskPending,
		Payload:   TaskPendingPayload{TaskID: taskID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyPending, msg)
}

// PublishTaskCompleted публикует событие о завершённой задаче.
// Потребители: downstream-системы (уведомления, отчёты).
func (p *Publisher) PublishTaskCompleted(ctx context.Context, payload TaskCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyCompleted, msg)
}

// PublishCircuitReset публикует операторский сигнал сброса breaker.
// Потребитель: Dispatcher (каждый экземпляр, fanout).
func (p *Publisher) PublishCircuitReset(ctx context.Context, workflowType string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeCircuitReset,
		Payload:   CircuitResetPayload{WorkflowType: workflowType},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeSignals, RoutingKeyReset, msg)
}
