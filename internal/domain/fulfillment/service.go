// Package fulfillment completes paid orders: it records the order, flips the
// completion gate, issues download tokens and dispatches the confirmation
// email.
package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/analytics"
	"github.com/xenking/roofgenius/internal/domain/download"
	"github.com/xenking/roofgenius/internal/domain/notify"
	"github.com/xenking/roofgenius/internal/domain/order"
	"github.com/xenking/roofgenius/internal/domain/payment"
	"github.com/xenking/roofgenius/internal/domain/product"
)

// ConfirmationTemplate is the email template sent after fulfillment.
const ConfirmationTemplate = "order_confirmation"

// Transactor runs fn in a single database transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TokenIssuer mints download tokens for the files of an order.
type TokenIssuer interface {
	Issue(ctx context.Context, o *order.Order, files []product.File) ([]download.Link, error)
}

// Notifier sends a templated email.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

// Config holds non-dependency configuration for the Service.
type Config struct {
	// AsyncTimeout bounds each background side effect (email, analytics).
	AsyncTimeout time.Duration
	// Meter records fulfillment outcomes. Nil disables metrics.
	Meter metric.Meter
}

// Deps are the collaborators of the Service.
type Deps struct {
	Tx       Transactor
	Orders   order.Repository
	Products product.Repository
	Resolver *LineItemResolver
	Issuer   TokenIssuer
	Notifier Notifier
	Tracker  analytics.Tracker
}

// Result describes what a fulfillment call did.
type Result struct {
	OrderID string
	// Completed is false when the order had already been completed and the
	// call was a replay with no side effects.
	Completed bool
	ProductID string
	Links     []download.Link
}

// ConfirmationData is the template data of the confirmation email.
type ConfirmationData struct {
	OrderNumber   string
	ProductName   string
	Amount        string
	DownloadLinks []download.Link
}

// Service runs the order fulfillment flow.
type Service struct {
	deps         Deps
	asyncTimeout time.Duration

	orders metric.Int64Counter
	emails metric.Int64Counter

	wg sync.WaitGroup
}

// NewService creates a fulfillment Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.AsyncTimeout <= 0 {
		cfg.AsyncTimeout = 10 * time.Second
	}
	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("fulfillment")
	}

	s := &Service{deps: deps, asyncTimeout: cfg.AsyncTimeout}

	var err error
	if s.orders, err = meter.Int64Counter("fulfillment.orders",
		metric.WithDescription("Payment completions processed, by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if s.emails, err = meter.Int64Counter("fulfillment.emails",
		metric.WithDescription("Confirmation emails, by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "emails counter")
	}
	return s, nil
}

// Fulfill processes a completed payment. Side effects run only for the call
// that flips the order to completed; replays return Completed=false.
// Email and analytics run in the background after Fulfill returns.
func (s *Service) Fulfill(ctx context.Context, ev *payment.PaymentCompleted) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("session_id", ev.SessionID))

	o, err := s.deps.Orders.FindBySession(ctx, ev.SessionID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		o = nil
	case err != nil:
		return nil, errors.Wrap(err, "find order")
	}

	if o != nil && o.Status == order.StatusCompleted {
		lg.Info("Order already fulfilled", zap.String("order_id", o.ID))
		s.countOrder(ctx, "replayed")
		return &Result{OrderID: o.ID, ProductID: o.ProductID}, nil
	}

	productID := ev.Metadata.ProductID
	if o != nil && o.HasProduct() {
		productID = o.ProductID
	}
	prod, files, err := s.catalog(ctx, lg, productID)
	if err != nil {
		return nil, err
	}
	// An id the catalog no longer knows is treated as absent so the order row
	// never references a missing product.
	if prod == nil && (o == nil || !o.HasProduct()) {
		if id := s.resolveProduct(ctx, lg, ev.SessionID); id != "" {
			if prod, files, err = s.catalog(ctx, lg, id); err != nil {
				return nil, err
			}
		}
	}
	productID = ""
	if prod != nil {
		productID = prod.ID
	}

	if o == nil {
		o, err = s.deps.Orders.UpsertPending(ctx, order.PendingOrder{
			SessionID:     ev.SessionID,
			UserID:        ev.Metadata.UserID,
			ProductID:     productID,
			CustomerEmail: ev.CustomerEmail,
			Amount:        order.AmountFromMinor(ev.AmountTotal),
		})
		if err != nil {
			return nil, errors.Wrap(err, "upsert order")
		}
	} else if !o.HasProduct() && productID != "" {
		if err := s.deps.Orders.AssignProduct(ctx, o.ID, productID); err != nil {
			return nil, errors.Wrap(err, "assign product")
		}
		o.ProductID = productID
	}
	lg = lg.With(zap.String("order_id", o.ID))
	if o.ProductID != productID {
		// A concurrent delivery created the row first; follow what it stored.
		if prod, files, err = s.catalog(ctx, lg, o.ProductID); err != nil {
			return nil, err
		}
	}

	var (
		completed bool
		links     []download.Link
	)
	err = s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := s.deps.Orders.MarkCompleted(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "mark completed")
		}
		if !ok {
			return nil
		}
		completed = true
		links, err = s.deps.Issuer.Issue(ctx, o, files)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !completed {
		lg.Info("Completion gate already passed, skipping side effects")
		s.countOrder(ctx, "replayed")
		return &Result{OrderID: o.ID, ProductID: o.ProductID}, nil
	}

	o.Status = order.StatusCompleted
	outcome := "completed"
	if prod == nil {
		outcome = "degraded"
	}
	s.countOrder(ctx, outcome)
	trace.SpanFromContext(ctx).AddEvent("order.completed", trace.WithAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.downloads", len(links)),
	))
	lg.Info("Order fulfilled", zap.Int("downloads", len(links)))

	recipient := o.CustomerEmail
	if recipient == "" {
		recipient = ev.CustomerEmail
	}
	s.background(ctx, func(ctx context.Context) {
		s.sendConfirmation(ctx, o, prod, links, recipient)
	})
	s.background(ctx, func(ctx context.Context) {
		s.track(ctx, o)
	})

	return &Result{
		OrderID:   o.ID,
		Completed: true,
		ProductID: o.ProductID,
		Links:     links,
	}, nil
}

// Wait blocks until all background side effects have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// resolveProduct maps the session's line item to a product, logging and
// returning "" on any failure.
func (s *Service) resolveProduct(ctx context.Context, lg *zap.Logger, sessionID string) string {
	if s.deps.Resolver == nil {
		return ""
	}
	id, err := s.deps.Resolver.Resolve(ctx, sessionID)
	if err != nil {
		lg.Warn("Line item resolution failed, fulfilling without files", zap.Error(err))
		return ""
	}
	return id
}

// catalog loads the product and its files. An empty id or a product that
// no longer exists yields nil without error.
func (s *Service) catalog(ctx context.Context, lg *zap.Logger, productID string) (*product.Product, []product.File, error) {
	if productID == "" {
		return nil, nil, nil
	}
	p, err := s.deps.Products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			lg.Warn("Ordered product missing from catalog", zap.String("product_id", productID))
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "get product")
	}
	files, err := s.deps.Products.Files(ctx, p.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list product files")
	}
	return p, files, nil
}

func (s *Service) sendConfirmation(ctx context.Context, o *order.Order, p *product.Product, links []download.Link, to string) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if to == "" {
		lg.Warn("No recipient for order confirmation")
		s.countEmail(ctx, "skipped")
		return
	}

	name := "your purchase"
	if p != nil {
		name = p.Name
	}
	if links == nil {
		links = []download.Link{}
	}
	id, err := s.deps.Notifier.Send(ctx, notify.Message{
		To:       to,
		Template: ConfirmationTemplate,
		Data: ConfirmationData{
			OrderNumber:   o.Number(),
			ProductName:   name,
			Amount:        FormatAmount(o),
			DownloadLinks: links,
		},
	})
	if err != nil {
		lg.Error("Order confirmation email failed", zap.Error(err))
		s.countEmail(ctx, "failed")
		return
	}
	lg.Info("Order confirmation sent", zap.String("message_id", id))
	s.countEmail(ctx, "sent")
}

func (s *Service) track(ctx context.Context, o *order.Order) {
	if s.deps.Tracker == nil {
		return
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(o.ProductID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(o.Amount.StringFixed(2)) })
	})
	err := s.deps.Tracker.Track(ctx, analytics.Event{
		Type:       analytics.EventOrderFulfilled,
		UserID:     o.UserID,
		Data:       e.Bytes(),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		zctx.From(ctx).Warn("Analytics tracking failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// background runs fn detached from the caller's cancellation, bounded by the
// async timeout.
func (s *Service) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.asyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) countOrder(ctx context.Context, outcome string) {
	s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) countEmail(ctx context.Context, outcome string) {
	s.emails.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// FormatAmount renders the order amount for display, e.g. "$50.00".
func FormatAmount(o *order.Order) string {
	return "$" + o.Amount.StringFixed(2)
}
