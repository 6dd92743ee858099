package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"openedu/client/internal/api"
)

// ErrVerificationFailed is surfaced to the user, who may retry payment.
var ErrVerificationFailed = errors.New("payment verification failed")

// Order is what the checkout UI needs from the gateway. The checkout
// itself is the gateway's surface, not ours.
type Order struct {
	KeyID    string `json:"key_id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Callback is the gateway's signed completion payload, passed to the
// backend for verification untouched.
type Callback struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type Service struct {
	client *api.Client
	log    zerolog.Logger
}

func NewService(client *api.Client, log zerolog.Logger) *Service {
	return &Service{client: client, log: log}
}

// CreateOrder opens a registration-fee order for the current tutor.
func (s *Service) CreateOrder(ctx context.Context) (Order, error) {
	var order Order
	if err := s.client.Post(ctx, "/payments/order", nil, &order); err != nil {
		return Order{}, fmt.Errorf("create payment order: %w", err)
	}
	return order, nil
}

// Verify submits the signed callback. A rejected signature maps to
// ErrVerificationFailed; transport failures propagate as-is.
func (s *Service) Verify(ctx context.Context, cb Callback) error {
	if cb.OrderID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return fmt.Errorf("%w: incomplete callback payload", ErrVerificationFailed)
	}

	err := s.client.Post(ctx, "/payments/verify", cb, nil)
	if err == nil {
		return nil
	}

	var se *api.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		s.log.Warn().Int("status", se.Code).Msg("payment verification rejected")
		return fmt.Errorf("%w: %s", ErrVerificationFailed, se.Message)
	}
	return err
}
