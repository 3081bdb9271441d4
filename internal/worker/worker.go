package worker

import (
	"context"
	"database/sql"
	"log"

	"storefront-service/internal/broker"
	"storefront-service/internal/mailer"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes order events and drives the transactional
// mailer. Email failures are logged and never retried against the order;
// the order itself is already durable when events reach this worker.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	mailer       *mailer.Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, st *store.Store, m *mailer.Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    st,
		mailer:   m,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err == sql.ErrNoRows {
		w.logger.Error("OrderPlaced event references unknown order",
			zap.String("order_id", event.OrderID))
		return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}
	if err != nil {
		return err
	}

	// Send at most once. A failed confirmation is logged, not redelivered:
	// the order stands regardless of email delivery.
	if err := w.mailer.SendOrderConfirmation(order); err != nil {
		w.logger.Error("Failed to send order confirmation",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err == sql.ErrNoRows {
		w.logger.Error("OrderStatusChanged event references unknown order",
			zap.String("order_id", event.OrderID))
		return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}
	if err != nil {
		return err
	}

	if err := w.mailer.SendOrderUpdate(order, event.PreviousStatus, event.NewStatus); err != nil {
		w.logger.Error("Failed to send order update",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
