package payouts

import (
	"context"
	"testing"
	"time"

	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/wise"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processedPayment(t *testing.T, f *payoutFixture) (*domain.Payment, domain.Dividend) {
	t.Helper()
	d := f.dividend(t, 10_000)
	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	return out.Payment, d
}

func TestSyncTransfer_SettlesSentPayment(t *testing.T) {
	f := setupPayoutsTest(t)
	paidAt := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	f.orch.Now = func() time.Time { return paidAt }
	payment, d := processedPayment(t, f)

	f.proc.transferStatus = TransferOutgoingPaymentSent
	synced, err := f.orch.SyncTransfer(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, synced.Status)
	assert.Equal(t, TransferOutgoingPaymentSent, *synced.WiseTransferStatus)

	got := f.reloadDividend(t, d.ID)
	assert.Equal(t, domain.PayoutItemSucceeded, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
}

func TestSyncTransfer_BouncedPaymentFailsItems(t *testing.T) {
	f := setupPayoutsTest(t)
	payment, d := processedPayment(t, f)

	f.proc.transferStatus = TransferBouncedBack
	synced, err := f.orch.SyncTransfer(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, synced.Status)

	got := f.reloadDividend(t, d.ID)
	assert.Equal(t, domain.PayoutItemFailed, got.Status)
	assert.Nil(t, got.PaidAt)
}

func TestSyncTransfer_InFlightOnlyRecordsState(t *testing.T) {
	f := setupPayoutsTest(t)
	payment, d := processedPayment(t, f)

	f.proc.transferStatus = "funds_converted"
	synced, err := f.orch.SyncTransfer(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentProcessing, synced.Status)

	var stored domain.Payment
	require.NoError(t, f.db.First(&stored, "id = ?", payment.ID).Error)
	assert.Equal(t, "funds_converted", *stored.WiseTransferStatus)
	assert.Equal(t, domain.PayoutItemProcessing, f.reloadDividend(t, d.ID).Status)
}

func TestSyncTransfer_Errors(t *testing.T) {
	f := setupPayoutsTest(t)
	ctx := context.Background()

	_, err := f.orch.SyncTransfer(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	pending := domain.Payment{
		PayoutType:          domain.PayoutTypeDividend,
		CompanyInvestorID:   f.investor.ID,
		ProcessorUUID:       uuid.NewString(),
		Status:              domain.PaymentInitial,
		NetAmountInUsdCents: 100,
	}
	require.NoError(t, f.db.Create(&pending).Error)
	_, err = f.orch.SyncTransfer(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrNoTransfer)
}

func TestPaymentStatusFor(t *testing.T) {
	cases := map[string]string{
		TransferOutgoingPaymentSent: domain.PaymentSucceeded,
		TransferCancelled:           domain.PaymentFailed,
		TransferFundsRefunded:       domain.PaymentFailed,
		TransferBouncedBack:         domain.PaymentFailed,
	}
	for state, want := range cases {
		got, final := paymentStatusFor(state)
		assert.True(t, final, state)
		assert.Equal(t, want, got, state)
	}
	_, final := paymentStatusFor("processing")
	assert.False(t, final)
}

type fakePublisher struct {
	queue string
	msg   interface{}
}

func (p *fakePublisher) Publish(_ context.Context, queueName string, v interface{}) error {
	p.queue = queueName
	p.msg = v
	return nil
}

func TestQueueNotifier_PublishesToRecipientQueue(t *testing.T) {
	pub := &fakePublisher{}
	n := &QueueNotifier{Publisher: pub}
	msg := emails.BankAccountDeactivated{PaymentIDParam: "p-1", Currency: "EUR", ToEmail: "a@example.com"}

	require.NoError(t, n.NotifyBankAccountDeactivated(context.Background(), msg))
	assert.Equal(t, "payouts.recipient_deactivated", pub.queue)
	assert.Equal(t, msg, pub.msg)
}

func TestSyncTransfer_StalePaymentLeavesRetriedItemsAlone(t *testing.T) {
	f := setupPayoutsTest(t)
	ctx := context.Background()
	d := f.dividend(t, 10_000)

	f.proc.fundStatus = "REJECTED"
	_, err := f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	stale := terr.PaymentID

	require.NoError(t, f.db.Model(&domain.Dividend{}).Where("id = ?", d.ID).Update("status", domain.PayoutItemIssued).Error)
	f.proc.fundStatus = wise.FundingCompleted
	f.proc.nextTransferID = 556
	out, err := f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)

	f.proc.transferStatus = TransferCancelled
	_, err = f.orch.SyncTransfer(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutItemProcessing, f.reloadDividend(t, d.ID).Status)

	f.proc.transferStatus = TransferOutgoingPaymentSent
	synced, err := f.orch.SyncTransfer(ctx, out.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, synced.Status)
	assert.Equal(t, domain.PayoutItemSucceeded, f.reloadDividend(t, d.ID).Status)

	f.proc.transferStatus = TransferCancelled
	_, err = f.orch.SyncTransfer(ctx, stale)
	require.NoError(t, err)
	got := f.reloadDividend(t, d.ID)
	assert.Equal(t, domain.PayoutItemSucceeded, got.Status)
	assert.NotNil(t, got.PaidAt)
}

func TestSyncTransfer_SettledItemsAreNotReopened(t *testing.T) {
	f := setupPayoutsTest(t)
	payment, d := processedPayment(t, f)

	f.proc.transferStatus = TransferOutgoingPaymentSent
	_, err := f.orch.SyncTransfer(context.Background(), payment.ID)
	require.NoError(t, err)

	f.proc.transferStatus = TransferBouncedBack
	synced, err := f.orch.SyncTransfer(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, synced.Status)
	assert.Equal(t, domain.PayoutItemSucceeded, f.reloadDividend(t, d.ID).Status)
}
