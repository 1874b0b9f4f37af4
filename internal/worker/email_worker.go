package worker

// email_worker.go
// Processes jobs from QueueEmail: order receipts for shoppers and the
// end-of-day closing report for the super admin. SMTP calls go through the
// circuit breaker so a downed relay fast-fails instead of tying workers up
// in timeouts.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chicomed/kalia-shop-sub000/internal/infra"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EmailWorker struct {
	orders     repository.OrderRepository
	cash       repository.CashRepository
	mailer     *infra.Mailer
	cb         *infra.CircuitBreaker
	storeName  string
	adminEmail string
	pdfPath    string
}

func NewEmailWorker(
	orders repository.OrderRepository,
	cash repository.CashRepository,
	mailer *infra.Mailer,
	cb *infra.CircuitBreaker,
	storeName, adminEmail, pdfPath string,
) *EmailWorker {
	return &EmailWorker{
		orders:     orders,
		cash:       cash,
		mailer:     mailer,
		cb:         cb,
		storeName:  storeName,
		adminEmail: adminEmail,
		pdfPath:    pdfPath,
	}
}

func (w *EmailWorker) Process(ctx context.Context, job Job) {
	switch job.Type {
	case JobClosingReport:
		w.sendClosingReport(ctx, job.Payload)
	default:
		w.sendOrderReceipt(ctx, job.Payload)
	}
}

// sendOrderReceipt loads the order, generates its receipt and mails it to the
// customer.
func (w *EmailWorker) sendOrderReceipt(ctx context.Context, raw json.RawMessage) {
	var payload OrderJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid payload")
		return
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		log.Error().Str("order_id", payload.OrderID).Msg("email_worker: invalid order id")
		return
	}

	order, err := w.orders.FindByID(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", payload.OrderID).Msg("email_worker: order not found")
		return
	}
	if order.CustomerEmail == nil || *order.CustomerEmail == "" {
		log.Warn().Str("order_id", payload.OrderID).Msg("email_worker: order has no email, skipping")
		return
	}

	pdfFile, err := infra.GenerateOrderReceiptPDF(order, w.storeName, w.pdfPath)
	if err != nil {
		log.Error().Err(err).Str("order_id", payload.OrderID).Msg("email_worker: PDF generation failed")
		pdfFile = "" // still send the plain-text confirmation
	}

	subject := fmt.Sprintf("%s — order confirmation", w.storeName)
	body := fmt.Sprintf(
		"Hi %s,\n\nThanks for your order! Total: %s.\nPayment method: %s.\n\nYour receipt is attached.\n",
		order.CustomerName, order.Total.StringFixed(2), order.PaymentMethod,
	)

	sendErr := w.cb.Execute(func() error {
		return w.mailer.Send(*order.CustomerEmail, subject, body, pdfFile)
	})
	if sendErr != nil {
		log.Error().Err(sendErr).Str("to", *order.CustomerEmail).
			Str("order_id", payload.OrderID).Msg("email_worker: failed to send email")
		return
	}
	log.Info().Str("to", *order.CustomerEmail).Str("order_id", payload.OrderID).
		Msg("email_worker: receipt sent")
}

// sendClosingReport mails the closed session's summary PDF to the super admin.
func (w *EmailWorker) sendClosingReport(ctx context.Context, raw json.RawMessage) {
	if w.adminEmail == "" {
		log.Warn().Msg("email_worker: no super admin email configured, skipping closing report")
		return
	}
	var payload ClosingReportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid closing report payload")
		return
	}

	sess, err := w.cash.FindSessionByDate(ctx, payload.Date)
	if err != nil {
		log.Error().Err(err).Str("date", payload.Date).Msg("email_worker: session not found")
		return
	}
	txs, err := w.cash.ListTransactionsBySession(ctx, sess.ID)
	if err != nil {
		log.Error().Err(err).Str("date", payload.Date).Msg("email_worker: failed to load journal")
		return
	}

	pdfFile, err := infra.GenerateClosingReportPDF(sess, len(txs), w.storeName, w.pdfPath)
	if err != nil {
		log.Error().Err(err).Str("date", payload.Date).Msg("email_worker: report PDF failed")
		pdfFile = ""
	}

	subject := fmt.Sprintf("%s — closing report %s", w.storeName, payload.Date)
	body := fmt.Sprintf(
		"Cash session %s closed.\n\nSales: %s\nRefunds: %s\nExpenses: %s\nClosing balance: %s\nEntries: %d\n",
		payload.Date, sess.TotalSales.StringFixed(2), sess.TotalRefunds.StringFixed(2),
		sess.TotalExpenses.StringFixed(2), sess.ClosingBalance.StringFixed(2), len(txs),
	)

	sendErr := w.cb.Execute(func() error {
		return w.mailer.Send(w.adminEmail, subject, body, pdfFile)
	})
	if sendErr != nil {
		log.Error().Err(sendErr).Str("date", payload.Date).
			Msg("email_worker: failed to send closing report")
		return
	}
	log.Info().Str("date", payload.Date).Str("to", w.adminEmail).
		Msg("email_worker: closing report sent")
}
