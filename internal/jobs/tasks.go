package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type identifiers routed through asynq.
const (
	TypeReceiptPrint = "receipt:print"
	TypeOrderNotify  = "notify:order"
)

// ReceiptPrintPayload asks the worker to render and print an order receipt.
type ReceiptPrintPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reprint bool      `json:"reprint"`
}

// OrderNotifyPayload asks the worker to notify interested parties about an order event.
type OrderNotifyPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Topic   string    `json:"topic"`
}

// NewReceiptPrintTask builds a print task for the given order. Print tasks
// run at most once: a retried job could put a second paper receipt in the
// customer's hands, so failed prints are redone by the cashier, not asynq.
func NewReceiptPrintTask(orderID uuid.UUID, reprint bool, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReceiptPrintPayload{OrderID: orderID, Reprint: reprint})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReceiptPrint, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewOrderNotifyTask builds a notification task for an order lifecycle event.
func NewOrderNotifyTask(orderID uuid.UUID, topic, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderNotifyPayload{OrderID: orderID, Topic: topic})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderNotify, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	), nil
}
