package receipt

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func sampleReceipt() Receipt {
	return Receipt{
		Header: Header{
			ShopName: "Kirana Hub",
			Address:  "12 MG Road, Pune",
			Phone:    "+91 98765 43210",
		},
		InvoiceNo: "INV-20260831-0042",
		IssuedAt:  time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC),
		Cashier:   "Asha",
		Items: []Item{
			{Name: "Basmati Rice 1kg", Qty: 2, UnitPrice: 20000, LineTotal: 40000},
			{Name: "Toor Dal 500g", Qty: 1, UnitPrice: 5000, LineTotal: 5000},
		},
		Subtotal:        45000,
		FlatDiscount:    5000,
		PercentDiscount: 4000,
		Total:           36000,
		PaymentMode:     "CASH",
		Tendered:        40000,
		Change:          4000,
	}
}

func TestFormatSections(t *testing.T) {
	data := Format(sampleReceipt(), 48)

	if !bytes.HasPrefix(data, []byte{0x1B, '@'}) {
		t.Fatalf("stream must start with ESC @ init")
	}
	if !bytes.HasSuffix(data, []byte{0x1D, 'V', 0x00}) {
		t.Fatalf("stream must end with a paper cut")
	}
	text := string(data)
	for _, want := range []string{
		"Kirana Hub",
		"INV-20260831-0042",
		"Basmati Rice 1kg",
		"Subtotal",
		"450.00",
		"360.00",
		"CASH",
		"Change",
		"40.00",
		"Thank you, visit again!",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("receipt missing %q", want)
		}
	}
	// ordering: header before items before totals before barcode
	if strings.Index(text, "Kirana Hub") > strings.Index(text, "Basmati Rice 1kg") {
		t.Fatalf("header must precede item table")
	}
	if strings.Index(text, "Basmati Rice 1kg") > strings.Index(text, "TOTAL") {
		t.Fatalf("item table must precede totals block")
	}
}

func TestFormatBarcodePayload(t *testing.T) {
	rc := sampleReceipt()
	data := Format(rc, 48)
	marker := []byte{0x1D, 'k', BarcodeCode128, byte(len(rc.InvoiceNo))}
	idx := bytes.Index(data, marker)
	if idx < 0 {
		t.Fatalf("barcode command not found")
	}
	payload := data[idx+len(marker) : idx+len(marker)+len(rc.InvoiceNo)]
	if string(payload) != rc.InvoiceNo {
		t.Fatalf("barcode payload = %q, want invoice number", payload)
	}
}

func TestFormatLinesRespectWidth(t *testing.T) {
	const width = 32
	data := Format(sampleReceipt(), width)
	for _, line := range bytes.Split(data, []byte{0x0A}) {
		visible := stripControl(line)
		if len(visible) > width {
			t.Fatalf("line %q exceeds width %d", visible, width)
		}
	}
}

func TestKeyValueRightAligns(t *testing.T) {
	d := NewDocument(20)
	d.KeyValue("Subtotal", "450.00")
	line := stripControl(d.Bytes())
	trimmed := strings.TrimSuffix(string(line), "\n")
	if len(trimmed) != 20 {
		t.Fatalf("key/value line should span full width, got %d: %q", len(trimmed), trimmed)
	}
	if !strings.HasSuffix(trimmed, "450.00") {
		t.Fatalf("value should be right-aligned: %q", trimmed)
	}
}

func TestColumnsAlignment(t *testing.T) {
	d := NewDocument(48)
	d.Columns([]Column{
		{Text: "a very long product name that keeps going on", Width: 10},
		{Text: "2", Width: 3, RightAlign: true},
		{Text: "200.00", Width: 8, RightAlign: true},
	})
	line := strings.TrimSuffix(string(stripControl(d.Bytes())), "\n")
	if line != "a very lon   2   200.00" {
		t.Fatalf("unexpected column rendering: %q", line)
	}
}

func TestColumnsPadMultiByteText(t *testing.T) {
	d := NewDocument(48)
	d.Columns([]Column{
		{Text: "चाय पत्ती 250g", Width: 10},
		{Text: "1", Width: 3, RightAlign: true},
		{Text: "120.00", Width: 8, RightAlign: true},
	})
	line := strings.TrimSuffix(string(stripControl(d.Bytes())), "\n")
	if got := len([]rune(line)); got != 10+1+3+1+8 {
		t.Fatalf("multi-byte column row should span %d chars, got %d: %q", 23, got, line)
	}
	if !strings.HasSuffix(line, "120.00") {
		t.Fatalf("numeric column should stay right-aligned: %q", line)
	}
}

func TestKeyValueCountsCharactersNotBytes(t *testing.T) {
	d := NewDocument(20)
	d.KeyValue("कुल", "360.00")
	line := strings.TrimSuffix(string(stripControl(d.Bytes())), "\n")
	if got := len([]rune(line)); got != 20 {
		t.Fatalf("key/value line should span 20 chars, got %d: %q", got, line)
	}
}

func TestClipKeepsRuneBoundaries(t *testing.T) {
	clipped := clip("मूंगफली तेल 1L", 7)
	if got := len([]rune(clipped)); got != 7 {
		t.Fatalf("clip should keep 7 runes, got %d: %q", got, clipped)
	}
	if !utf8.ValidString(clipped) {
		t.Fatalf("clip split a rune mid-sequence: %q", clipped)
	}
}

// stripControl drops ESC/GS command sequences, keeping printable text and feeds.
func stripControl(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		b := data[i]
		switch b {
		case 0x1B: // ESC x n, except ESC @ which has no parameter byte
			if i+1 < len(data) && data[i+1] == '@' {
				i += 2
			} else {
				i += 3
			}
		case 0x1D: // GS commands
			if i+1 < len(data) && data[i+1] == 'k' && i+3 < len(data) {
				n := int(data[i+3])
				i += 4 + n
			} else {
				i += 3
			}
		default:
			out = append(out, b)
			i++
		}
	}
	return out
}
