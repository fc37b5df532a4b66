package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/jobs"
	"github.com/kiranahub/backend-pos/internal/lock"
	"github.com/kiranahub/backend-pos/internal/receipt"
)

type stubSource struct {
	rc  receipt.Receipt
	err error
}

func (s stubSource) BuildReceipt(context.Context, uuid.UUID) (receipt.Receipt, error) {
	return s.rc, s.err
}

type capturePrinter struct {
	data [][]byte
	err  error
}

func (p *capturePrinter) Print(b []byte) error {
	if p.err != nil {
		return p.err
	}
	p.data = append(p.data, b)
	return nil
}

func (p *capturePrinter) IsConnected() bool { return p.err == nil }
func (p *capturePrinter) Close() error      { return nil }

type memStore struct {
	events []events.Event
}

func (m *memStore) InsertEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	ev := events.Event{ID: int64(len(m.events) + 1), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}
	m.events = append(m.events, ev)
	return ev, nil
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestHandleReceiptPrint(t *testing.T) {
	printer := &capturePrinter{}
	store := &memStore{}
	worker := &jobs.PrintWorker{
		Source:  stubSource{rc: receipt.Receipt{InvoiceNo: "INV-20260831-0007", IssuedAt: time.Now()}},
		Printer: printer,
		Locker:  newLocker(t),
		Bus:     &events.Bus{Store: store},
		Width:   48,
		Logger:  zerolog.Nop(),
	}

	orderID := uuid.New()
	task, err := jobs.NewReceiptPrintTask(orderID, false, "print")
	require.NoError(t, err)

	require.NoError(t, worker.HandleReceiptPrint(context.Background(), task))
	require.Len(t, printer.data, 1)
	require.NotEmpty(t, printer.data[0])
	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicReceiptPrinted, store.events[0].Topic)
	require.Equal(t, orderID, store.events[0].AggregateID)
}

func TestHandleReceiptPrintPrinterDown(t *testing.T) {
	printer := &capturePrinter{err: receipt.ErrPrinterUnavailable}
	worker := &jobs.PrintWorker{
		Source:  stubSource{rc: receipt.Receipt{InvoiceNo: "INV-20260831-0008", IssuedAt: time.Now()}},
		Printer: printer,
		Locker:  newLocker(t),
		Width:   48,
		Logger:  zerolog.Nop(),
	}

	task, err := jobs.NewReceiptPrintTask(uuid.New(), true, "print")
	require.NoError(t, err)

	err = worker.HandleReceiptPrint(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReceiptPrintFailureIsNeverRetried(t *testing.T) {
	// a write error halfway through a receipt must not trigger a second
	// print attempt
	printer := &capturePrinter{err: errors.New("write tcp 10.0.0.5:9100: broken pipe")}
	worker := &jobs.PrintWorker{
		Source:  stubSource{rc: receipt.Receipt{InvoiceNo: "INV-20260831-0009", IssuedAt: time.Now()}},
		Printer: printer,
		Locker:  newLocker(t),
		Width:   48,
		Logger:  zerolog.Nop(),
	}

	task, err := jobs.NewReceiptPrintTask(uuid.New(), false, "print")
	require.NoError(t, err)

	err = worker.HandleReceiptPrint(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, printer.data)
}

func TestHandleReceiptPrintBadPayload(t *testing.T) {
	worker := &jobs.PrintWorker{
		Source:  stubSource{},
		Printer: &capturePrinter{},
		Locker:  newLocker(t),
		Logger:  zerolog.Nop(),
	}
	err := worker.HandleReceiptPrint(context.Background(), asynq.NewTask(jobs.TypeReceiptPrint, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubContacts struct {
	name  string
	email string
	err   error
}

func (s stubContacts) ContactForOrder(context.Context, uuid.UUID) (string, string, string, error) {
	return s.name, "", s.email, s.err
}

func TestHandleOrderNotify(t *testing.T) {
	mailbox := &common.InMemoryEmail{}
	worker := &jobs.NotifyWorker{
		Contacts: stubContacts{name: "Asha", email: "asha@example.com"},
		Email:    mailbox,
		Logger:   zerolog.Nop(),
	}

	task, err := jobs.NewOrderNotifyTask(uuid.New(), events.TopicOrderPaid, "notify")
	require.NoError(t, err)
	require.NoError(t, worker.HandleOrderNotify(context.Background(), task))
	require.Len(t, mailbox.Outbox, 1)
	require.Equal(t, "asha@example.com", mailbox.Outbox[0].To)
	require.Contains(t, mailbox.Outbox[0].HTML, "Asha")
}

func TestHandleOrderNotifySkipsWithoutEmail(t *testing.T) {
	mailbox := &common.InMemoryEmail{}
	worker := &jobs.NotifyWorker{
		Contacts: stubContacts{name: "walk-in"},
		Email:    mailbox,
		Logger:   zerolog.Nop(),
	}
	task, err := jobs.NewOrderNotifyTask(uuid.New(), events.TopicOrderDelivered, "notify")
	require.NoError(t, err)
	require.NoError(t, worker.HandleOrderNotify(context.Background(), task))
	require.Empty(t, mailbox.Outbox)
}

func TestHandleOrderNotifyContactFailure(t *testing.T) {
	worker := &jobs.NotifyWorker{
		Contacts: stubContacts{err: errors.New("order not found")},
		Email:    common.NopEmailSender{},
		Logger:   zerolog.Nop(),
	}
	task, err := jobs.NewOrderNotifyTask(uuid.New(), events.TopicOrderPaid, "notify")
	require.NoError(t, err)
	require.Error(t, worker.HandleOrderNotify(context.Background(), task))
}
