// Package paymentsvc provides the payment gateway used at checkout.
package paymentsvc

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/enrollment"
)

// Test payment methods that always fail.
const (
	DeclineToken    = "tok_decline"
	declineCardLast = "0002"
)

// errors
var (
	errUnknownCharge   = errors.New("unknown charge")
	errAlreadyRefunded = errors.New("charge already refunded")
)

type charge struct {
	receipt  enrollment.Receipt
	refunded bool
}

// SimulatedGateway accepts every payment method except the decline token
// and card numbers ending in 0002.
type SimulatedGateway struct {
	logger core.Logger

	mu      sync.Mutex
	charges map[string]*charge
}

var _ enrollment.PaymentGateway = (*SimulatedGateway)(nil)

func NewSimulatedGateway(logger core.Logger) *SimulatedGateway {
	return &SimulatedGateway{logger: logger, charges: make(map[string]*charge)}
}

func declines(m enrollment.PaymentMethod) bool {
	card := strings.ReplaceAll(strings.TrimSpace(m.CardNumber), " ", "")
	return m.Token == DeclineToken || strings.HasSuffix(card, declineCardLast)
}

func (gw *SimulatedGateway) Charge(ctx context.Context, req enrollment.ChargeRequest) (enrollment.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return enrollment.Receipt{}, errors.Wrap(err, "charging")
	}
	if req.Amount <= 0 {
		return enrollment.Receipt{}, errors.Errorf("invalid charge amount %d", req.Amount)
	}
	if declines(req.Method) {
		gw.logger.Info("payment declined", map[string]interface{}{"amount": req.Amount, "currency": req.Currency})
		return enrollment.Receipt{}, errors.Wrap(enrollment.ErrPaymentDeclined, "charging card")
	}

	r := enrollment.Receipt{
		ID:        "ch_" + uuid.NewString(),
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: core.NowFunc(),
	}
	gw.mu.Lock()
	gw.charges[r.ID] = &charge{receipt: r}
	gw.mu.Unlock()

	gw.logger.Info("payment captured", map[string]interface{}{"charge_id": r.ID, "amount": r.Amount, "currency": r.Currency})
	return r, nil
}

func (gw *SimulatedGateway) Refund(ctx context.Context, chargeID string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "refunding")
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()

	c, ok := gw.charges[chargeID]
	switch {
	case !ok:
		return errors.Wrap(errUnknownCharge, chargeID)
	case c.refunded:
		return errors.Wrap(errAlreadyRefunded, chargeID)
	}
	c.refunded = true
	gw.logger.Info("payment refunded", map[string]interface{}{"charge_id": chargeID})
	return nil
}
