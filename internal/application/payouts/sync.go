package payouts

import (
	"context"
	"errors"
	"fmt"

	"flexile-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Processor transfer states with a final outcome.
const (
	TransferOutgoingPaymentSent = "outgoing_payment_sent"
	TransferCancelled           = "cancelled"
	TransferFundsRefunded       = "funds_refunded"
	TransferBouncedBack         = "bounced_back"
)

// paymentStatusFor maps a processor transfer state to a payment status. Unlisted states
// are still in flight and keep the current status.
func paymentStatusFor(transferStatus string) (string, bool) {
	switch transferStatus {
	case TransferOutgoingPaymentSent:
		return domain.PaymentSucceeded, true
	case TransferCancelled, TransferFundsRefunded, TransferBouncedBack:
		return domain.PaymentFailed, true
	}
	return "", false
}

// SyncTransfer pulls the transfer state of a payment from the processor and settles the
// payment and its items once the transfer reaches a final state. Only items still
// processing and not picked up by a later payment are settled.
func (o *Orchestrator) SyncTransfer(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	var payment domain.Payment
	if err := o.DB.WithContext(ctx).Preload("Items").Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.TransferID == nil {
		return nil, ErrNoTransfer
	}
	v, ok := VariantFor(payment.PayoutType, nil)
	if !ok {
		return nil, fmt.Errorf("unknown payout type %q", payment.PayoutType)
	}

	tr, err := o.Processor.GetTransfer(ctx, *payment.TransferID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"wise_transfer_status": tr.Status}
	status, final := paymentStatusFor(tr.Status)
	if final {
		updates["status"] = status
	}
	err = o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&payment).Updates(updates).Error; err != nil {
			return err
		}
		if !final {
			return nil
		}
		ids, err := ownedItemIDs(tx, &payment)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		itemUpdates := map[string]interface{}{"updated_at": o.now()}
		if status == domain.PaymentSucceeded {
			itemUpdates["status"] = v.SucceededStatus
			itemUpdates["paid_at"] = o.now()
		} else {
			itemUpdates["status"] = v.FailedStatus
		}
		return tx.Table(v.Table).Where("id IN ? AND status = ?", ids, v.ProcessingStatus).Updates(itemUpdates).Error
	})
	if err != nil {
		return nil, err
	}

	payment.WiseTransferStatus = &tr.Status
	if final {
		payment.Status = status
	}
	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("transfer_status", tr.Status).
		Str("status", payment.Status).
		Msg("payment synced")
	return &payment, nil
}

// ownedItemIDs returns the payment's items that no later payment has picked up.
func ownedItemIDs(tx *gorm.DB, payment *domain.Payment) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(payment.Items))
	for _, it := range payment.Items {
		ids = append(ids, it.ItemID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var others []domain.Payment
	err := tx.Preload("Items").
		Where("id <> ? AND id IN (?)", payment.ID, tx.Model(&domain.PaymentItem{}).Select("payment_id").Where("item_id IN ?", ids)).
		Find(&others).Error
	if err != nil {
		return nil, err
	}
	superseded := make(map[uuid.UUID]bool)
	for _, other := range others {
		if !other.CreatedAt.After(payment.CreatedAt) {
			continue
		}
		for _, it := range other.Items {
			superseded[it.ItemID] = true
		}
	}
	owned := ids[:0]
	for _, id := range ids {
		if !superseded[id] {
			owned = append(owned, id)
		}
	}
	return owned, nil
}
