package infra

// pdf.go — PDF generation using go-pdf/fpdf.
// Two documents are produced here:
//   - order receipts mailed to customers after checkout
//   - daily closing reports for the back office archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/go-pdf/fpdf"
)

// GenerateOrderReceiptPDF renders an A5 receipt for a placed order.
// storagePath is the directory where the PDF will be written (created if
// needed). Returns the absolute path to the generated file.
func GenerateOrderReceiptPDF(order *model.Order, storeName, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("order_%s.pdf", order.ID)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, storeName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Order Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	// ── Order info ───────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Order %s", order.ID), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 4, order.CreatedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, order.CustomerName+"  ·  "+order.CustomerPhone, "", 1, "L", false, 0, "")
	if order.Address != "" {
		pdf.CellFormat(contentW, 4, order.Address, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Items ────────────────────────────────────────────────────────────────
	col1 := contentW * 0.54
	col2 := contentW * 0.14
	col3 := contentW * 0.32

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(col1, 5, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for i := range order.Items {
		item := &order.Items[i]
		name := item.Name
		if len(name) > 30 {
			name = name[:29] + "…"
		}
		pdf.CellFormat(col1, 5, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("x%d", item.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, item.Subtotal().StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	// ── Total + payment ──────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, order.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	label := "Payment: " + order.PaymentMethod
	if order.PayOnDelivery() {
		label += " (on delivery)"
	}
	pdf.CellFormat(contentW, 5, label, "", 1, "L", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(contentW, 4, "Thank you for your order!", "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

// GenerateClosingReportPDF renders the end-of-day summary for a closed or
// archived cash session.
func GenerateClosingReportPDF(s *model.DailyCashSession, txCount int, storeName, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("closing_%s.pdf", s.Date)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, storeName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Daily Closing Report — "+s.Date, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(contentW*0.6, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.4, 6, value, "", 1, "R", false, 0, "")
	}

	row("Opening balance", s.OpeningBalance.StringFixed(2), false)
	row("Total sales", s.TotalSales.StringFixed(2), false)
	row("Total refunds", s.TotalRefunds.StringFixed(2), false)
	row("Total expenses", s.TotalExpenses.StringFixed(2), false)
	row("Closing balance", s.ClosingBalance.StringFixed(2), true)
	row("Transactions", fmt.Sprintf("%d", txCount), false)

	pdf.Ln(2)
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(contentW, 6, "By payment method", "", 1, "L", false, 0, "")
	methods := make([]string, 0, len(s.MethodTotals))
	for m := range s.MethodTotals {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		row(m, s.MethodTotals[m].StringFixed(2), false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}
