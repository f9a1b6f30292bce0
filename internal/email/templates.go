package email

import (
	"fmt"

	"github.com/tanamarket/tana/internal/models"
)

// PaymentReceipt builds the message sent after a payment is verified.
func PaymentReceipt(order *models.Order) *Email {
	if order == nil || order.PaymentResult == nil {
		return nil
	}

	subject := fmt.Sprintf("TANA Market: payment received for order %s", shortOrderID(order))
	text := fmt.Sprintf(
		"Thank you for your purchase!\n\nOrder %s is paid (%s %s) and is now being processed.\nTransaction reference: %s\n",
		shortOrderID(order), formatMoney(order.TotalCents), order.Currency, order.PaymentResult.TransactionID,
	)

	return &Email{
		To:      order.PaymentResult.PayerEmail,
		Subject: subject,
		Text:    text,
	}
}

// ShippedNotice builds the message sent when an order leaves the warehouse.
func ShippedNotice(order *models.Order) *Email {
	if order == nil || order.PaymentResult == nil {
		return nil
	}

	subject := fmt.Sprintf("TANA Market: order %s has shipped", shortOrderID(order))
	text := fmt.Sprintf(
		"Your order %s is on its way.\n\nTracking number: %s\n",
		shortOrderID(order), order.TrackingNumber,
	)
	if !order.EstimatedArrivalDate.IsZero() {
		text += fmt.Sprintf("Estimated arrival: %s\n", order.EstimatedArrivalDate.Format("2006-01-02"))
	}

	return &Email{
		To:      order.PaymentResult.PayerEmail,
		Subject: subject,
		Text:    text,
	}
}

func shortOrderID(order *models.Order) string {
	id := order.ID.String()
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMoney(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
