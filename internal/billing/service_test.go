package billing_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kiranahub/backend-pos/internal/billing"
	"github.com/kiranahub/backend-pos/internal/catalog"
	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/receipt"
)

type memOrders struct {
	orders map[uuid.UUID]billing.Order
	items  map[uuid.UUID][]billing.OrderItem
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[uuid.UUID]billing.Order{}, items: map[uuid.UUID][]billing.OrderItem{}}
}

func (m *memOrders) CreateOrder(_ context.Context, order billing.Order, items []billing.OrderItem) (billing.Order, error) {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
	}
	m.orders[order.ID] = order
	m.items[order.ID] = items
	return order, nil
}

func (m *memOrders) GetOrder(_ context.Context, id uuid.UUID) (billing.Order, []billing.OrderItem, error) {
	order, ok := m.orders[id]
	if !ok {
		return billing.Order{}, nil, pgx.ErrNoRows
	}
	return order, m.items[id], nil
}

func (m *memOrders) MarkOrderPaid(_ context.Context, id uuid.UUID, paidAt time.Time) (billing.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return billing.Order{}, pgx.ErrNoRows
	}
	if order.Status == billing.StatusPendingPayment {
		order.Status = billing.StatusPaid
		order.PaidAt = &paidAt
		m.orders[id] = order
	}
	return order, nil
}

type memPrices struct {
	products map[uuid.UUID]catalog.Product
	variants map[uuid.UUID]catalog.ProductVariant
}

func (m *memPrices) GetProductByID(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return catalog.Product{}, pgx.ErrNoRows
}

func (m *memPrices) GetVariant(_ context.Context, id uuid.UUID) (catalog.ProductVariant, error) {
	if v, ok := m.variants[id]; ok {
		return v, nil
	}
	return catalog.ProductVariant{}, pgx.ErrNoRows
}

type memTasks struct {
	tasks []*asynq.Task
}

func (m *memTasks) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

type memEventStore struct {
	topics []string
}

func (m *memEventStore) InsertEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	m.topics = append(m.topics, topic)
	return events.Event{ID: int64(len(m.topics)), Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

type memAccounts struct {
	emails map[string]string
}

func (m *memAccounts) EmailForPhone(_ context.Context, phone string) (string, error) {
	return m.emails[phone], nil
}

type stubPrinter struct {
	connected bool
}

func (p stubPrinter) Print([]byte) error { return nil }
func (p stubPrinter) IsConnected() bool  { return p.connected }
func (p stubPrinter) Close() error       { return nil }

type fixture struct {
	svc      *billing.Service
	store    *memOrders
	tasks    *memTasks
	eventsS  *memEventStore
	accounts *memAccounts
	rice     uuid.UUID
	atta     uuid.UUID
}

func newFixture(t *testing.T, printer receipt.Printer) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	riceID := uuid.New()
	attaID := uuid.New()
	prices := &memPrices{
		products: map[uuid.UUID]catalog.Product{
			riceID: {ID: riceID, Title: "Basmati Rice 5kg", Price: 15000, Active: true},
			attaID: {ID: attaID, Title: "Atta 10kg", Price: 10000, Active: true},
		},
		variants: map[uuid.UUID]catalog.ProductVariant{},
	}

	store := newMemOrders()
	tasks := &memTasks{}
	eventStore := &memEventStore{}
	accounts := &memAccounts{emails: map[string]string{"9876543210": "asha@example.com"}}
	svc := &billing.Service{
		Store:    store,
		Prices:   prices,
		Accounts: accounts,
		Invoices: &billing.InvoiceSequencer{R: client, Now: func() time.Time { return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC) }},
		Bus:      &events.Bus{Store: eventStore},
		Tasks:    tasks,
		Printer:  printer,
		Shop:     receipt.Header{ShopName: "Kirana Hub"},
		UPIVPA:   "kiranahub@okicici",
		Width:    48,
		Logger:   zerolog.Nop(),
	}
	return &fixture{svc: svc, store: store, tasks: tasks, eventsS: eventStore, accounts: accounts, rice: riceID, atta: attaID}
}

func TestCreateOrderCashHappyPath(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	// 2 x 150.00 @ 10% off, 1 x 100.00, then 50.00 flat and 10% off the order
	ten := 1000
	view, err := fx.svc.CreateOrder(context.Background(), uuid.NewString(), billing.CreateOrderInput{
		Lines: []billing.CartLine{
			{ProductID: fx.rice.String(), Qty: 2, DiscountBps: &ten},
			{ProductID: fx.atta.String(), Qty: 1},
		},
		FlatDiscount:       5000,
		PercentDiscountBps: 1000,
		PaymentMode:        billing.PaymentCash,
		CashTendered:       40000,
	})
	require.NoError(t, err)

	require.Equal(t, int64(37000), view.Subtotal)
	require.Equal(t, int64(5000), view.FlatDiscount)
	require.Equal(t, int64(3200), view.PercentDiscount)
	require.Equal(t, int64(28800), view.Total)
	require.Equal(t, int64(11200), view.ChangeDue)
	require.Equal(t, billing.StatusPaid, view.Status)
	require.Equal(t, "INV-20260831-0001", view.InvoiceNo)
	require.NotNil(t, view.PaidAt)

	// cash sales are paid immediately: created + paid events, one print job
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderPaid}, fx.eventsS.topics)
	require.Len(t, fx.tasks.tasks, 1)
}

func TestCreateOrderEmptyCartFailsBeforeIO(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	_, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		PaymentMode: billing.PaymentCash,
	})
	require.Error(t, err)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	require.Empty(t, fx.store.orders)
	require.Empty(t, fx.eventsS.topics)
}

func TestCreateOrderCashShortTendered(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	_, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 10000,
	})
	require.Error(t, err)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Empty(t, fx.store.orders)
}

func TestCreateOrderUPIPending(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:       []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode: billing.PaymentUPI,
	})
	require.NoError(t, err)
	require.Equal(t, billing.StatusPendingPayment, view.Status)
	require.Contains(t, view.UPIURI, "upi://pay?")
	require.Contains(t, view.UPIURI, "am=150.00")
	require.Contains(t, view.UPIURI, "tn=INV-20260831-0001")

	// no receipt until the payment lands
	require.Empty(t, fx.tasks.tasks)
	require.Equal(t, []string{events.TopicOrderCreated}, fx.eventsS.topics)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:       []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode: billing.PaymentUPI,
	})
	require.NoError(t, err)
	orderID := uuid.MustParse(view.ID)

	paid, err := fx.svc.MarkPaid(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Len(t, fx.tasks.tasks, 1)

	again, err := fx.svc.MarkPaid(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusPaid, again.Status)
	require.Equal(t, paid.PaidAt.Unix(), again.PaidAt.Unix())
	// second call neither re-emits nor re-prints
	require.Len(t, fx.tasks.tasks, 1)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderPaid}, fx.eventsS.topics)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	_, err := fx.svc.MarkPaid(context.Background(), uuid.New())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestReprintWhenPrinterDown(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: false})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 15000,
	})
	require.NoError(t, err)

	err = fx.svc.Reprint(context.Background(), uuid.MustParse(view.ID))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PRINTER_UNAVAILABLE", appErr.Code)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestReprintQueuesWhenPrinterUp(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 15000,
	})
	require.NoError(t, err)
	require.Len(t, fx.tasks.tasks, 1)

	require.NoError(t, fx.svc.Reprint(context.Background(), uuid.MustParse(view.ID)))
	require.Len(t, fx.tasks.tasks, 2)
}

func TestBuildReceiptMirrorsOrder(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 2}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 30000,
		CustomerName: "Asha",
	})
	require.NoError(t, err)

	rc, err := fx.svc.BuildReceipt(context.Background(), uuid.MustParse(view.ID))
	require.NoError(t, err)
	require.Equal(t, "Kirana Hub", rc.Header.ShopName)
	require.Equal(t, view.InvoiceNo, rc.InvoiceNo)
	require.Equal(t, "Asha", rc.Customer)
	require.Len(t, rc.Items, 1)
	require.Equal(t, int64(30000), rc.Items[0].LineTotal)
	require.Equal(t, view.Total, rc.Total)
}

func TestContactForOrderResolvesAccountEmail(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:         []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:   billing.PaymentCash,
		CashTendered:  15000,
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
	})
	require.NoError(t, err)

	name, phone, email, err := fx.svc.ContactForOrder(context.Background(), uuid.MustParse(view.ID))
	require.NoError(t, err)
	require.Equal(t, "Asha", name)
	require.Equal(t, "9876543210", phone)
	require.Equal(t, "asha@example.com", email)
}

func TestContactForOrderWalkInHasNoEmail(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 15000,
	})
	require.NoError(t, err)

	_, phone, email, err := fx.svc.ContactForOrder(context.Background(), uuid.MustParse(view.ID))
	require.NoError(t, err)
	require.Empty(t, phone)
	require.Empty(t, email)
}

func TestCreateOrderClampsDiscounts(t *testing.T) {
	fx := newFixture(t, stubPrinter{connected: true})

	over := 15000
	view, err := fx.svc.CreateOrder(context.Background(), "", billing.CreateOrderInput{
		Lines:        []billing.CartLine{{ProductID: fx.rice.String(), Qty: 1, DiscountBps: &over}},
		PaymentMode:  billing.PaymentCash,
		CashTendered: 0,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), view.Subtotal)
	require.Equal(t, int64(0), view.Total)
}
