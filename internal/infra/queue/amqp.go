// Package queue carries message dispatch jobs over RabbitMQ so any replica
// can deliver what another one scheduled.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one dispatch job. A returned error means the job may be
// retried.
type Handler func(ctx context.Context, job domain.DispatchJob) error

var (
	errConnectionClosed = errors.New("amqp connection closed")
	errConsumerStopped  = errors.New("amqp consumer stopped")
)

// AMQP publishes and consumes dispatch jobs on one durable queue. Jobs that
// keep failing end up on "<queue>.dead".
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	retry   resilience.Config
	logger  *zap.Logger

	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
	stopped atomic.Bool
}

// NewAMQP dials the broker and declares the dispatch queue with its
// dead-letter queue. A failing job is retried per retry before it is
// dead-lettered.
func NewAMQP(url, queueName string, retry resilience.Config, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	dead := DeadLetterQueue(queueName)
	if _, err := channel.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", dead, err)
	}

	if _, err := channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dead,
		},
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	logger.Info("amqp dispatch queue declared", zap.String("queue", queueName), zap.String("dead_letter", dead))

	return &AMQP{
		conn:    conn,
		channel: channel,
		queue:   queueName,
		retry:   retry,
		logger:  logger,
	}, nil
}

// DeadLetterQueue names the queue receiving jobs that exhausted their retries.
func DeadLetterQueue(queueName string) string {
	return queueName + ".dead"
}

// Enqueue publishes a persistent job.
func (a *AMQP) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode dispatch job: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.channel.PublishWithContext(ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.JobID,
			Body:         body,
		},
	)
}

// Consume delivers jobs to handler one at a time (Qos 1) until ctx is done.
// Failing jobs are retried in place with backoff, then dead-lettered;
// undecodable bodies are dead-lettered at once.
func (a *AMQP) Consume(ctx context.Context, handler Handler) error {
	if err := a.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := a.channel.Consume(
		a.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	a.logger.Info("amqp consumer started", zap.String("queue", a.queue))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					a.stopped.Store(true)
					a.logger.Error("amqp delivery channel closed, consumer stopped", zap.String("queue", a.queue))
					return
				}
				a.handle(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (a *AMQP) handle(ctx context.Context, msg amqp.Delivery, handler Handler) {
	job, err := DecodeJob(msg.Body)
	if err != nil {
		a.logger.Error("dead-lettering undecodable dispatch job", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	err = resilience.RetryWithBackoff(ctx, a.retry, func() error {
		return handler(ctx, job)
	})
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	if ctx.Err() != nil {
		// shutting down: hand the job back for another consumer
		_ = msg.Nack(false, true)
		return
	}

	a.logger.Error("dispatch job failed, dead-lettering",
		zap.String("job_id", job.JobID),
		zap.String("message_id", job.MessageID),
		zap.Int("max_attempts", a.retry.MaxRetries+1),
		zap.Error(err),
	)
	_ = msg.Nack(false, false)
}

// Ping reports whether the broker connection is up and, once Consume ran,
// whether the consumer is still receiving.
func (a *AMQP) Ping(context.Context) error {
	if a.stopped.Load() {
		return errConsumerStopped
	}
	if a.conn == nil || a.conn.IsClosed() {
		return errConnectionClosed
	}
	return nil
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// DecodeJob parses a queue body into a dispatch job.
func DecodeJob(body []byte) (domain.DispatchJob, error) {
	var job domain.DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode dispatch job: %w", err)
	}
	if job.MessageID == "" {
		return job, fmt.Errorf("dispatch job without message_id")
	}
	return job, nil
}
