package services

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/sawaari/driveshare-backend/internal/models"
)

// RenderReceipt renders a confirmed booking as a one-page PDF receipt
func RenderReceipt(r *models.BookingReceipt, issuedAt time.Time) ([]byte, error) {
	if r == nil || r.Booking == nil || r.Trip == nil || r.Payment == nil {
		return nil, errors.New("receipt needs booking, trip and payment")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Booking Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "DRIVESHARE RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Receipt No   : " + r.Payment.Reference,
		"Issued       : " + issuedAt.Format("2006-01-02 15:04"),
		"Booking ID   : " + r.Booking.ID.String(),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Trip")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("Route        : %s -> %s", r.Trip.Source, r.Trip.Destination))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Departure    : %s %s", r.Trip.TripDate.Format("2006-01-02"), r.Trip.TripTime))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Seats        : %d x %s", r.Booking.SeatsBooked, formatAmount(r.Trip.PricePerSeat, r.Currency)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Paid: %s via %s", formatAmount(r.Payment.Amount, r.Currency), r.Payment.Mode))
	pdf.Ln(12)

	if r.Trip.PinkMode {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, "Pink mode trip: reserved for women riders.", "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(amount float64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}
