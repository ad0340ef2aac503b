package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming with manual acks and the configured prefetch
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.queue.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// startMessageDispatcher forwards deliveries to the worker pool. It reports
// whether it stopped because the delivery channel closed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return false

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return true
			}

			msg, err := parseMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter exchange
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag
			msg.Delivery = delivery

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return false
			}
		}
	}
}

func parseMessage(body []byte) (*domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid message JSON: %w", err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return nil, fmt.Errorf("job_id %q is not a UUID: %w", msg.JobID, err)
	}
	return &msg, nil
}
