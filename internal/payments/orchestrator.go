package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"sanctuary/internal/metrics"
	"sanctuary/internal/models"
)

// Options are the fixed parts of every session request.
type Options struct {
	SuccessURL string
	CancelURL  string
	Currency   string
	Timeout    time.Duration
}

var errEmptyURL = errors.New("provider returned a session without a url")

type Option func(*Orchestrator)

// WithProvider enables session creation and status lookups.
func WithProvider(p CheckoutProvider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

// WithVerifier enables webhook handling.
func WithVerifier(v SignatureVerifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// Orchestrator creates checkout sessions, reports their status and applies
// fulfillment when the provider reports a successful payment. Without a
// provider or verifier the corresponding operations fail with
// ErrPaymentsUnavailable.
type Orchestrator struct {
	opts     Options
	catalog  Catalog
	ledger   Ledger
	buyers   Buyers
	provider CheckoutProvider
	verifier SignatureVerifier
	metrics  metrics.Recorder
	logger   *zap.Logger
}

func NewOrchestrator(opts Options, catalog Catalog, ledger Ledger, buyers Buyers, logger *zap.Logger, options ...Option) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		opts:    opts,
		catalog: catalog,
		ledger:  ledger,
		buyers:  buyers,
		metrics: metrics.Nop{},
		logger:  logger,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// CreateSession opens a hosted checkout for the known products among
// productIDs and returns the URL to redirect the buyer to. buyer is optional;
// when present the session is tagged with the buyer's id and email.
func (o *Orchestrator) CreateSession(ctx context.Context, productIDs []string, buyer *models.User) (string, error) {
	if o.provider == nil {
		o.metrics.RecordCheckoutSession("unconfigured")
		return "", ErrPaymentsUnavailable
	}

	ids := cleanIDs(productIDs)
	if len(ids) == 0 {
		o.metrics.RecordCheckoutSession("no_products")
		return "", ErrNoProducts
	}
	products, err := o.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		o.metrics.RecordCheckoutSession("no_products")
		return "", ErrNoProducts
	}

	req := SessionRequest{
		Currency:   o.opts.Currency,
		SuccessURL: o.opts.SuccessURL,
		CancelURL:  o.opts.CancelURL,
		Metadata:   map[string]string{"product_ids": strings.Join(ids, ",")},
	}
	for _, p := range products {
		req.LineItems = append(req.LineItems, LineItem{
			Name:        p.Name,
			Description: p.Description,
			UnitAmount:  MinorUnits(p.Price),
			Quantity:    1,
		})
	}
	if buyer != nil {
		req.Metadata["user_id"] = buyer.ID
		req.ClientReferenceID = buyer.ID
		req.CustomerEmail = buyer.Email
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	session, err := o.provider.CreateSession(callCtx, req)
	if err == nil && session.URL == "" {
		err = errEmptyURL
	}
	if err != nil {
		o.metrics.RecordCheckoutSession("failed")
		o.logger.Error("checkout session creation failed",
			zap.Strings("product_ids", ids),
			zap.Error(err),
		)
		return "", ErrCreateSession.Wrap(err)
	}

	o.metrics.RecordCheckoutSession("created")
	o.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.Int("line_items", len(req.LineItems)),
	)
	return session.URL, nil
}

// GetStatus reads a session through from the provider. Any lookup failure is
// reported as ErrSessionNotFound.
func (o *Orchestrator) GetStatus(ctx context.Context, sessionID string) (*Status, error) {
	if o.provider == nil {
		return nil, ErrPaymentsUnavailable
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	session, err := o.provider.GetSession(callCtx, sessionID)
	if err != nil {
		o.logger.Warn("checkout session lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, ErrSessionNotFound.Wrap(err)
	}
	return &Status{
		PaymentStatus: session.PaymentStatus,
		Status:        session.Status,
		AmountTotal:   session.AmountTotal,
		Currency:      session.Currency,
	}, nil
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
