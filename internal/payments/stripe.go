package payments

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider hosts sessions on Stripe Checkout.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider bounds every outbound call with timeout.
func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, stripe.NewBackends(&http.Client{Timeout: timeout}))
	return &StripeProvider{api: api}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	params.Context = ctx

	for _, item := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(item.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	cs, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripe(cs), nil
}

func (p *StripeProvider) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, err
	}
	return fromStripe(cs), nil
}

func fromStripe(cs *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		Status:        string(cs.Status),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}
}

// StripeVerifier checks the Stripe-Signature header with the endpoint's
// signing secret, including the default timestamp tolerance.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Verify(payload []byte, header string) error {
	return webhook.ValidatePayload(payload, header, v.secret)
}
