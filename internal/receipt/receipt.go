// Package receipt renders a finalized order into printable artifacts: the
// customer-facing itemized receipt and, for home-delivery orders, a courier
// hand-off slip.
package receipt

import (
	"encoding/base64"
	"fmt"
	"strings"

	"fondapos/backend/internal/domain"
)

type Receipt struct {
	OrderID         string `json:"order_id"`
	PreviewText     string `json:"preview_text"`
	EscposBase64    string `json:"escpos_base64"`
	FileName        string `json:"file_name"`
	CourierSlipText string `json:"courier_slip_text,omitempty"`
}

// Build renders the order. The delivery method decides whether a courier
// slip is attached; pass nil when the method is unknown.
func Build(order *domain.Order, method *domain.DeliveryMethod) Receipt {
	lines := []string{
		"FondaPOS",
		"========================",
		"Order: " + order.ID,
		"Branch: " + order.BranchID,
		"Date: " + order.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if name := customerName(order); name != "" {
		lines = append(lines, "Customer: "+name)
	}
	lines = append(lines, "------------------------")

	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		lines = append(lines, "  "+formatCents(item.UnitPriceCents*int64(item.Quantity)))
	}

	paid := order.PaidCents()
	balance := order.TotalCents - paid
	if balance < 0 {
		balance = 0
	}

	lines = append(lines,
		"------------------------",
		"Subtotal : "+formatCents(order.SubtotalCents),
		"Discount : "+formatCents(order.DiscountCents),
		"Shipping : "+formatCents(order.ShippingCents),
		"Total    : "+formatCents(order.TotalCents),
	)
	for _, p := range order.Payments {
		lines = append(lines, fmt.Sprintf("Paid %-4s: %s", p.Method, formatCents(p.AmountCents)))
	}
	lines = append(lines,
		"Balance  : "+formatCents(balance),
		"========================",
		"Thank you",
		"",
	)

	r := Receipt{
		OrderID:      order.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos(lines)),
		FileName:     fmt.Sprintf("receipt-%s.bin", order.ID),
	}

	if method != nil && method.HomeDelivery {
		r.CourierSlipText = courierSlip(order, balance)
	}
	return r
}

func courierSlip(order *domain.Order, balanceCents int64) string {
	lines := []string{
		"COURIER SLIP",
		"Order: " + order.ID,
	}
	if name := customerName(order); name != "" {
		lines = append(lines, "Customer: "+name)
	}
	lines = append(lines, "Address: "+order.DeliveryAddress.Street)
	if order.DeliveryAddress.City != "" {
		lines = append(lines, "City: "+order.DeliveryAddress.City)
	}
	if order.DeliveryAddress.Reference != "" {
		lines = append(lines, "Reference: "+order.DeliveryAddress.Reference)
	}
	if order.DeliveryZoneID != "" {
		lines = append(lines, "Zone: "+order.DeliveryZoneID)
	}
	if order.DeliveryNotes != "" {
		lines = append(lines, "Notes: "+order.DeliveryNotes)
	}
	lines = append(lines, "------------------------")
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
	}
	lines = append(lines,
		"------------------------",
		"COLLECT: "+formatCents(balanceCents),
		"",
	)
	return strings.Join(lines, "\n")
}

func customerName(order *domain.Order) string {
	if order.Customer != nil && order.Customer.Name != "" {
		return order.Customer.Name
	}
	return order.CustomerName
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func escpos(lines []string) []byte {
	buf := []byte{0x1b, 0x40}
	for _, line := range lines {
		buf = append(buf, []byte(line)...)
		buf = append(buf, '\n')
	}
	// Partial cut.
	buf = append(buf, []byte{0x1d, 0x56, 0x41, 0x10}...)
	return buf
}
