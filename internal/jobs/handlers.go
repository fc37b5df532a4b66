package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/lock"
	"github.com/kiranahub/backend-pos/internal/obs"
	"github.com/kiranahub/backend-pos/internal/receipt"
)

const printerLockKey = "lock:printer"

// ReceiptSource renders a printable receipt for a stored order.
type ReceiptSource interface {
	BuildReceipt(ctx context.Context, orderID uuid.UUID) (receipt.Receipt, error)
}

// OrderContact resolves the customer contact details for notifications.
type OrderContact interface {
	ContactForOrder(ctx context.Context, orderID uuid.UUID) (name, phone, email string, err error)
}

// PrintWorker renders receipts and drives the physical printer. Printing is
// serialised through a Redis lock because ESC/POS devices interleave bytes
// from concurrent writers.
type PrintWorker struct {
	Source  ReceiptSource
	Printer receipt.Printer
	Locker  lock.Locker
	Bus     *events.Bus
	Width   int
	Logger  zerolog.Logger
}

// HandleReceiptPrint processes a receipt:print task.
func (w *PrintWorker) HandleReceiptPrint(ctx context.Context, task *asynq.Task) error {
	var payload ReceiptPrintPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}
	rc, err := w.Source.BuildReceipt(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}
	data := receipt.Format(rc, w.Width)

	err = w.Locker.WithLock(ctx, printerLockKey, 30*time.Second, func(ctx context.Context) error {
		return w.Printer.Print(data)
	})
	if err != nil {
		if obs.ReceiptPrintTotal != nil {
			obs.ReceiptPrintTotal.WithLabelValues("error").Inc()
		}
		if errors.Is(err, receipt.ErrPrinterUnavailable) {
			w.Logger.Warn().Str("invoice", rc.InvoiceNo).Msg("printer unavailable, dropping job")
		} else {
			w.Logger.Error().Err(err).Str("invoice", rc.InvoiceNo).Msg("print failed, dropping job")
		}
		// never retried: a half-printed receipt plus a retry means two receipts
		return fmt.Errorf("print %s: %v: %w", rc.InvoiceNo, err, asynq.SkipRetry)
	}

	if obs.ReceiptPrintTotal != nil {
		obs.ReceiptPrintTotal.WithLabelValues("ok").Inc()
	}
	if w.Bus != nil {
		if _, err := w.Bus.Emit(ctx, events.TopicReceiptPrinted, payload.OrderID, map[string]any{
			"invoiceNo": rc.InvoiceNo,
			"reprint":   payload.Reprint,
		}); err != nil {
			w.Logger.Error().Err(err).Msg("emit receipt.printed")
		}
	}
	w.Logger.Info().Str("invoice", rc.InvoiceNo).Bool("reprint", payload.Reprint).Msg("receipt printed")
	return nil
}

// NotifyWorker emails order updates to customers that shared an address.
type NotifyWorker struct {
	Contacts OrderContact
	Email    common.EmailSender
	Logger   zerolog.Logger
}

// HandleOrderNotify processes a notify:order task.
func (w *NotifyWorker) HandleOrderNotify(ctx context.Context, task *asynq.Task) error {
	var payload OrderNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}
	name, _, email, err := w.Contacts.ContactForOrder(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("load contact for %s: %w", payload.OrderID, err)
	}
	if email == "" {
		w.Logger.Debug().Str("order", payload.OrderID.String()).Msg("no email on order, skipping notify")
		return nil
	}

	var subject, body string
	switch payload.Topic {
	case events.TopicOrderPaid:
		subject = "Payment received"
		body = fmt.Sprintf("Hi %s, we have received your payment. Your order is being prepared.", name)
	case events.TopicOrderDelivered:
		subject = "Order delivered"
		body = fmt.Sprintf("Hi %s, your order has been delivered. Thank you for shopping with us!", name)
	default:
		return nil
	}
	if err := w.Email.Send(email, subject, body); err != nil {
		return fmt.Errorf("send notify email: %w", err)
	}
	return nil
}
