package paymentsvc

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/enrollment"
	logsvc "github.com/trezcool/darasa/services/logger"
)

func TestSimulatedGateway_Charge(t *testing.T) {
	ctx := context.Background()
	gw := NewSimulatedGateway(logsvc.NewNopLogger())

	tests := []struct {
		name    string
		method  enrollment.PaymentMethod
		amount  int64
		wantErr error
	}{
		{name: "card", method: enrollment.PaymentMethod{CardNumber: "4242 4242 4242 4242"}, amount: 4999},
		{name: "token", method: enrollment.PaymentMethod{Token: "tok_visa"}, amount: 100},
		{name: "decline token", method: enrollment.PaymentMethod{Token: DeclineToken}, amount: 100, wantErr: enrollment.ErrPaymentDeclined},
		{name: "decline card", method: enrollment.PaymentMethod{CardNumber: "4000000000000002"}, amount: 100, wantErr: enrollment.ErrPaymentDeclined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := gw.Charge(ctx, enrollment.ChargeRequest{Amount: tc.amount, Currency: "USD", Method: tc.method})
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(r.ID, "ch_"))
			assert.Equal(t, tc.amount, r.Amount)
			assert.Equal(t, "USD", r.Currency)
		})
	}

	_, err := gw.Charge(ctx, enrollment.ChargeRequest{Amount: 0, Currency: "USD"})
	assert.Error(t, err)
}

func TestSimulatedGateway_Refund(t *testing.T) {
	ctx := context.Background()
	gw := NewSimulatedGateway(logsvc.NewNopLogger())

	r, err := gw.Charge(ctx, enrollment.ChargeRequest{Amount: 500, Currency: "USD", Method: enrollment.PaymentMethod{Token: "tok_visa"}})
	require.NoError(t, err)

	require.NoError(t, gw.Refund(ctx, r.ID))
	assert.Equal(t, errAlreadyRefunded, errors.Cause(gw.Refund(ctx, r.ID)))
	assert.Equal(t, errUnknownCharge, errors.Cause(gw.Refund(ctx, "ch_nope")))
}
