package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/kiranahub/backend-pos/internal/catalog"
	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/jobs"
	"github.com/kiranahub/backend-pos/internal/obs"
	"github.com/kiranahub/backend-pos/internal/pricing"
	"github.com/kiranahub/backend-pos/internal/receipt"
)

type orderStore interface {
	CreateOrder(ctx context.Context, order Order, items []OrderItem) (Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, []OrderItem, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (Order, error)
}

type priceSource interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (catalog.ProductVariant, error)
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type emailDirectory interface {
	EmailForPhone(ctx context.Context, phone string) (string, error)
}

// Service drives the point-of-sale checkout flow: pricing, persistence,
// payment capture, and receipt printing.
type Service struct {
	Store      orderStore
	Prices     priceSource
	Accounts   emailDirectory
	Invoices   *InvoiceSequencer
	Bus        *events.Bus
	Tasks      taskEnqueuer
	Printer    receipt.Printer
	PrintQueue string
	Shop       receipt.Header
	UPIVPA     string
	Width      int
	Logger     zerolog.Logger
	Now        func() time.Time
}

// CartLine is one POS cart entry.
type CartLine struct {
	ProductID   string `json:"productId" validate:"required,uuid4"`
	VariantID   string `json:"variantId,omitempty" validate:"omitempty,uuid4"`
	Qty         int    `json:"qty" validate:"required,gte=1"`
	DiscountBps *int   `json:"discountBps,omitempty"`
}

// CreateOrderInput is the POS checkout payload.
type CreateOrderInput struct {
	Lines              []CartLine `json:"lines" validate:"required,dive"`
	FlatDiscount       int64      `json:"flatDiscount" validate:"gte=0"`
	PercentDiscountBps int        `json:"percentDiscountBps"`
	PaymentMode        string     `json:"paymentMode" validate:"required,oneof=CASH UPI"`
	CashTendered       int64      `json:"cashTendered" validate:"gte=0"`
	CustomerName       string     `json:"customerName" validate:"max=120"`
	CustomerPhone      string     `json:"customerPhone" validate:"max=16"`
}

// OrderView is the API payload for a stored order.
type OrderView struct {
	ID              string          `json:"id"`
	InvoiceNo       string          `json:"invoiceNo"`
	Status          string          `json:"status"`
	PaymentMode     string          `json:"paymentMode"`
	CustomerName    string          `json:"customerName,omitempty"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	Subtotal        int64           `json:"subtotal"`
	FlatDiscount    int64           `json:"flatDiscount"`
	PercentDiscount int64           `json:"percentDiscount"`
	Total           int64           `json:"total"`
	TotalDisplay    string          `json:"totalDisplay"`
	CashTendered    int64           `json:"cashTendered,omitempty"`
	ChangeDue       int64           `json:"changeDue,omitempty"`
	UPIURI          string          `json:"upiUri,omitempty"`
	Items           []OrderItemView `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
}

// OrderItemView is one line of an OrderView.
type OrderItemView struct {
	Title       string `json:"title"`
	Qty         int32  `json:"qty"`
	UnitPrice   int64  `json:"unitPrice"`
	DiscountBps int32  `json:"discountBps"`
	LineTotal   int64  `json:"lineTotal"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateOrder prices the cart, persists the sale, and kicks off printing.
// Validation happens before any storage or network I/O.
func (s *Service) CreateOrder(ctx context.Context, cashierID string, input CreateOrderInput) (OrderView, error) {
	if len(input.Lines) == 0 {
		return OrderView{}, common.ValidationError("cart must contain at least one line")
	}
	if input.PaymentMode != PaymentCash && input.PaymentMode != PaymentUPI {
		return OrderView{}, common.ValidationError("paymentMode must be CASH or UPI")
	}

	lines := make([]pricing.Line, 0, len(input.Lines))
	items := make([]OrderItem, 0, len(input.Lines))
	for i, cartLine := range input.Lines {
		priced, item, err := s.priceLine(ctx, i, cartLine)
		if err != nil {
			return OrderView{}, err
		}
		lines = append(lines, priced)
		items = append(items, item)
	}

	summary := pricing.Compute(lines, input.FlatDiscount, input.PercentDiscountBps, input.CashTendered)

	if input.PaymentMode == PaymentCash && input.CashTendered < summary.Total {
		return OrderView{}, &common.AppError{
			Code:       "VALIDATION_ERROR",
			Message:    "cash tendered is less than the payable total",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"total": summary.Total, "tendered": input.CashTendered},
		}
	}

	invoiceNo, err := s.Invoices.Next(ctx)
	if err != nil {
		return OrderView{}, fmt.Errorf("billing: allocate invoice: %w", err)
	}

	order := Order{
		InvoiceNo:          invoiceNo,
		CustomerName:       strings.TrimSpace(input.CustomerName),
		CustomerPhone:      strings.TrimSpace(input.CustomerPhone),
		PaymentMode:        input.PaymentMode,
		Subtotal:           summary.Subtotal,
		FlatDiscount:       summary.FlatDiscount,
		PercentDiscountBps: int32(pricing.ClampBps(input.PercentDiscountBps)),
		PercentDiscount:    summary.PercentDiscount,
		Total:              summary.Total,
	}
	if id, err := uuid.Parse(cashierID); err == nil {
		order.CashierID = id
	}

	switch input.PaymentMode {
	case PaymentCash:
		now := s.now()
		order.Status = StatusPaid
		order.CashTendered = input.CashTendered
		order.ChangeDue = summary.Change
		order.PaidAt = &now
	case PaymentUPI:
		order.Status = StatusPendingPayment
		order.UPIURI = s.upiURI(invoiceNo, summary.Total)
	}

	created, err := s.Store.CreateOrder(ctx, order, items)
	if err != nil {
		if obs.POSSaleTotal != nil {
			obs.POSSaleTotal.WithLabelValues(input.PaymentMode, "error").Inc()
		}
		return OrderView{}, fmt.Errorf("billing: persist order: %w", err)
	}
	for i := range items {
		items[i].OrderID = created.ID
	}

	if obs.POSSaleTotal != nil {
		obs.POSSaleTotal.WithLabelValues(input.PaymentMode, "ok").Inc()
	}
	if obs.POSSaleAmount != nil {
		obs.POSSaleAmount.WithLabelValues(input.PaymentMode).Observe(float64(created.Total))
	}

	s.emit(ctx, events.TopicOrderCreated, created)
	if created.Status == StatusPaid {
		s.emit(ctx, events.TopicOrderPaid, created)
		s.enqueuePrint(ctx, created.ID, false)
	}
	return toView(created, items), nil
}

// MarkPaid settles a pending UPI order. Calling it on an already paid order
// is a no-op that returns the current state.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID) (OrderView, error) {
	order, items, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderView{}, common.NotFoundError("order not found")
		}
		return OrderView{}, fmt.Errorf("billing: load order: %w", err)
	}
	if order.Status == StatusPaid || order.Status == StatusDelivered {
		return toView(order, items), nil
	}
	if order.Status == StatusCancelled {
		return OrderView{}, &common.AppError{
			Code:       "ORDER_CANCELLED",
			Message:    "a cancelled order cannot be marked paid",
			HTTPStatus: http.StatusConflict,
		}
	}

	updated, err := s.Store.MarkOrderPaid(ctx, orderID, s.now())
	if err != nil {
		return OrderView{}, fmt.Errorf("billing: mark paid: %w", err)
	}
	s.emit(ctx, events.TopicOrderPaid, updated)
	s.enqueuePrint(ctx, updated.ID, false)
	return toView(updated, items), nil
}

// Reprint re-sends the receipt to the printer. When the printer bridge is
// unreachable the caller gets a 503 instead of a silently queued job.
func (s *Service) Reprint(ctx context.Context, orderID uuid.UUID) error {
	order, _, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NotFoundError("order not found")
		}
		return fmt.Errorf("billing: load order: %w", err)
	}
	if s.Printer == nil || !s.Printer.IsConnected() {
		return &common.AppError{
			Code:       "PRINTER_UNAVAILABLE",
			Message:    "the receipt printer is not reachable",
			HTTPStatus: http.StatusServiceUnavailable,
		}
	}
	s.enqueuePrint(ctx, order.ID, true)
	return nil
}

// GetOrder returns the stored order.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (OrderView, error) {
	order, items, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderView{}, common.NotFoundError("order not found")
		}
		return OrderView{}, fmt.Errorf("billing: load order: %w", err)
	}
	return toView(order, items), nil
}

// BuildReceipt renders the printable receipt for an order. It backs both the
// synchronous preview endpoint and the async print worker.
func (s *Service) BuildReceipt(ctx context.Context, orderID uuid.UUID) (receipt.Receipt, error) {
	order, items, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return receipt.Receipt{}, common.NotFoundError("order not found")
		}
		return receipt.Receipt{}, fmt.Errorf("billing: load order: %w", err)
	}
	rc := receipt.Receipt{
		Header:          s.Shop,
		InvoiceNo:       order.InvoiceNo,
		IssuedAt:        order.CreatedAt,
		Customer:        order.CustomerName,
		Subtotal:        order.Subtotal,
		PercentDiscount: order.PercentDiscount,
		FlatDiscount:    order.FlatDiscount,
		Total:           order.Total,
		PaymentMode:     order.PaymentMode,
		Tendered:        order.CashTendered,
		Change:          order.ChangeDue,
	}
	rc.Items = make([]receipt.Item, 0, len(items))
	for _, item := range items {
		rc.Items = append(rc.Items, receipt.Item{
			Name:      item.Title,
			Qty:       int(item.Qty),
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return rc, nil
}

// ContactForOrder resolves the customer contact for notification jobs. The
// email comes from the account registered under the order's phone number;
// walk-in sales without a phone stay email-less and the worker skips them.
func (s *Service) ContactForOrder(ctx context.Context, orderID uuid.UUID) (string, string, string, error) {
	order, _, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return "", "", "", err
	}
	if order.CustomerPhone == "" || s.Accounts == nil {
		return order.CustomerName, order.CustomerPhone, "", nil
	}
	email, err := s.Accounts.EmailForPhone(ctx, order.CustomerPhone)
	if err != nil {
		return "", "", "", fmt.Errorf("billing: resolve contact email: %w", err)
	}
	return order.CustomerName, order.CustomerPhone, email, nil
}

func (s *Service) priceLine(ctx context.Context, idx int, cartLine CartLine) (pricing.Line, OrderItem, error) {
	productID, err := uuid.Parse(cartLine.ProductID)
	if err != nil {
		return pricing.Line{}, OrderItem{}, lineError(idx, "invalid productId")
	}
	product, err := s.Prices.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Line{}, OrderItem{}, lineError(idx, "product not found")
		}
		return pricing.Line{}, OrderItem{}, fmt.Errorf("billing: load product: %w", err)
	}
	if !product.Active {
		return pricing.Line{}, OrderItem{}, lineError(idx, "product is not sellable")
	}

	basePrice := product.Price
	title := product.Title
	var variantID uuid.NullUUID
	if cartLine.VariantID != "" {
		vid, err := uuid.Parse(cartLine.VariantID)
		if err != nil {
			return pricing.Line{}, OrderItem{}, lineError(idx, "invalid variantId")
		}
		variant, err := s.Prices.GetVariant(ctx, vid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return pricing.Line{}, OrderItem{}, lineError(idx, "variant not found")
			}
			return pricing.Line{}, OrderItem{}, fmt.Errorf("billing: load variant: %w", err)
		}
		if variant.ProductID != product.ID {
			return pricing.Line{}, OrderItem{}, lineError(idx, "variant does not belong to product")
		}
		basePrice = variant.Price
		title = product.Title + " " + variant.Label
		variantID = uuid.NullUUID{UUID: variant.ID, Valid: true}
	}

	discountBps := int(product.DefaultDiscountBps)
	if cartLine.DiscountBps != nil {
		discountBps = *cartLine.DiscountBps
	}
	discountBps = pricing.ClampBps(discountBps)
	unit := pricing.UnitPrice(basePrice, discountBps)

	line := pricing.Line{Qty: cartLine.Qty, UnitPrice: basePrice, DiscountBps: discountBps}
	item := OrderItem{
		ProductID:   product.ID,
		VariantID:   variantID,
		Title:       title,
		Qty:         int32(cartLine.Qty),
		UnitPrice:   unit,
		DiscountBps: int32(discountBps),
		LineTotal:   unit * int64(cartLine.Qty),
	}
	return line, item, nil
}

func (s *Service) upiURI(invoiceNo string, total int64) string {
	if s.UPIVPA == "" {
		return ""
	}
	params := url.Values{}
	params.Set("pa", s.UPIVPA)
	params.Set("pn", s.Shop.ShopName)
	params.Set("am", common.FormatMinor(total))
	params.Set("tn", invoiceNo)
	params.Set("cu", "INR")
	return "upi://pay?" + params.Encode()
}

func (s *Service) emit(ctx context.Context, topic string, order Order) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, order.ID, map[string]any{
		"invoiceNo": order.InvoiceNo,
		"status":    order.Status,
		"total":     order.Total,
	}); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("invoice", order.InvoiceNo).Msg("emit order event")
	}
}

func (s *Service) enqueuePrint(ctx context.Context, orderID uuid.UUID, reprint bool) {
	if s.Tasks == nil {
		return
	}
	task, err := jobs.NewReceiptPrintTask(orderID, reprint, s.PrintQueue)
	if err != nil {
		s.Logger.Error().Err(err).Msg("build print task")
		return
	}
	if _, err := s.Tasks.EnqueueContext(ctx, task); err != nil {
		s.Logger.Error().Err(err).Str("order", orderID.String()).Msg("enqueue print task")
	}
}

func lineError(idx int, message string) error {
	return &common.AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"line": idx},
	}
}

func toView(order Order, items []OrderItem) OrderView {
	view := OrderView{
		ID:              order.ID.String(),
		InvoiceNo:       order.InvoiceNo,
		Status:          order.Status,
		PaymentMode:     order.PaymentMode,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		Subtotal:        order.Subtotal,
		FlatDiscount:    order.FlatDiscount,
		PercentDiscount: order.PercentDiscount,
		Total:           order.Total,
		TotalDisplay:    common.FormatINR(order.Total),
		CashTendered:    order.CashTendered,
		ChangeDue:       order.ChangeDue,
		UPIURI:          order.UPIURI,
		CreatedAt:       order.CreatedAt,
		PaidAt:          order.PaidAt,
	}
	view.Items = make([]OrderItemView, 0, len(items))
	for _, item := range items {
		view.Items = append(view.Items, OrderItemView{
			Title:       item.Title,
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
			DiscountBps: item.DiscountBps,
			LineTotal:   item.LineTotal,
		})
	}
	return view
}
