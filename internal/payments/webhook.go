package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

// HandleWebhook verifies and dispatches one provider callback. Nothing in
// payload is read before the signature checks out. Successful payments are
// fulfilled through the ledger, so redelivery of the same session is a no-op.
// Event types without a handler are acknowledged.
func (o *Orchestrator) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if o.verifier == nil {
		return ErrPaymentsUnavailable
	}
	if strings.TrimSpace(signature) == "" {
		o.metrics.RecordWebhookEvent("unverified", "missing_signature")
		return ErrMissingSignature
	}
	if err := o.verifier.Verify(payload, signature); err != nil {
		o.metrics.RecordWebhookEvent("unverified", "invalid_signature")
		o.logger.Warn("webhook signature rejected", zap.Error(err))
		return ErrInvalidSignature.Wrap(err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		o.metrics.RecordWebhookEvent("unknown", "invalid_payload")
		o.logger.Warn("webhook payload rejected", zap.Error(err))
		return ErrInvalidPayload.Wrap(err)
	}

	eventType := string(event.Type)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		o.metrics.RecordWebhookEvent(eventType, "ignored")
		o.logger.Debug("webhook event ignored", zap.String("event_id", event.ID), zap.String("type", eventType))
		return nil
	}

	var cs stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &cs) != nil || cs.ID == "" {
		o.metrics.RecordWebhookEvent(eventType, "invalid_payload")
		return ErrInvalidPayload
	}

	if event.Type == stripe.EventTypeCheckoutSessionCompleted && !settled(cs.PaymentStatus) {
		// Delayed methods complete unpaid and follow up with async_payment_succeeded.
		o.metrics.RecordWebhookEvent(eventType, "awaiting_payment")
		o.logger.Info("checkout completed without payment yet",
			zap.String("session_id", cs.ID),
			zap.String("payment_status", string(cs.PaymentStatus)),
		)
		return nil
	}

	if err := o.fulfil(ctx, &cs); err != nil {
		o.metrics.RecordWebhookEvent(eventType, "failed")
		o.logger.Error("fulfillment failed", zap.String("session_id", cs.ID), zap.Error(err))
		return err
	}
	o.metrics.RecordWebhookEvent(eventType, "processed")
	return nil
}

func settled(status stripe.CheckoutSessionPaymentStatus) bool {
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func (o *Orchestrator) fulfil(ctx context.Context, cs *stripe.CheckoutSession) error {
	f := &models.Fulfillment{
		SessionID:   cs.ID,
		ProductIDs:  cs.Metadata["product_ids"],
		AmountTotal: cs.AmountTotal,
		Currency:    string(cs.Currency),
	}

	buyer, err := o.resolveBuyer(ctx, cs)
	if err != nil {
		return err
	}
	if buyer != nil {
		f.UserID = &buyer.ID
	}

	applied, err := o.ledger.Apply(ctx, f)
	if err != nil {
		return err
	}
	if !applied {
		o.metrics.RecordFulfillment("duplicate")
		o.logger.Info("fulfillment already applied", zap.String("session_id", cs.ID))
		return nil
	}

	o.metrics.RecordFulfillment("applied")
	fields := []zap.Field{zap.String("session_id", cs.ID), zap.String("product_ids", f.ProductIDs)}
	if buyer != nil {
		fields = append(fields, zap.String("user_id", buyer.ID))
	}
	o.logger.Info("fulfillment applied", fields...)
	return nil
}

// resolveBuyer finds the account a session was paid for: the user id
// recorded at checkout first, then the email the buyer paid with. A session
// that matches no account is fulfilled anonymously.
func (o *Orchestrator) resolveBuyer(ctx context.Context, cs *stripe.CheckoutSession) (*models.User, error) {
	for _, id := range []string{cs.Metadata["user_id"], cs.ClientReferenceID} {
		if id == "" {
			continue
		}
		u, err := o.buyers.GetByID(ctx, id)
		if err == nil {
			return u, nil
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
	}

	emails := []string{cs.CustomerEmail}
	if cs.CustomerDetails != nil {
		emails = append([]string{cs.CustomerDetails.Email}, emails...)
	}
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		u, err := o.buyers.GetByEmail(ctx, email)
		if err == nil {
			return u, nil
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
	}
	return nil, nil
}
