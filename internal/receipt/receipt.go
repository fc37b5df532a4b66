package receipt

import (
	"strconv"
	"time"

	"github.com/kiranahub/backend-pos/internal/common"
)

// Header holds the shop metadata printed at the top of every receipt.
type Header struct {
	ShopName string `json:"shop_name"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	GSTIN    string `json:"gstin,omitempty"`
}

// Item is a single line item on a receipt.
type Item struct {
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Receipt is a printable value object composed from sale data at print
// time. It is never persisted; the order rows are the source of truth.
type Receipt struct {
	Header          Header    `json:"header"`
	InvoiceNo       string    `json:"invoice_no"`
	IssuedAt        time.Time `json:"issued_at"`
	Cashier         string    `json:"cashier,omitempty"`
	Customer        string    `json:"customer,omitempty"`
	Items           []Item    `json:"items"`
	Subtotal        int64     `json:"subtotal"`
	PercentDiscount int64     `json:"percent_discount"`
	FlatDiscount    int64     `json:"flat_discount"`
	Total           int64     `json:"total"`
	PaymentMode     string    `json:"payment_mode"`
	Tendered        int64     `json:"tendered,omitempty"`
	Change          int64     `json:"change,omitempty"`
}

// Format renders the receipt into an ESC/POS byte stream at the given
// character width. Section order: centred header, invoice and timestamp,
// item table, totals block, payment mode, footer banner, invoice barcode,
// paper cut.
func Format(rc Receipt, width int) []byte {
	d := NewDocument(width)

	d.SetAlign(AlignCenter)
	d.SetBold(true).SetFontSize(FontDouble)
	d.Text(rc.Header.ShopName)
	d.SetFontSize(FontNormal).SetBold(false)
	if rc.Header.Address != "" {
		d.Text(rc.Header.Address)
	}
	if rc.Header.Phone != "" {
		d.Text("Ph: " + rc.Header.Phone)
	}
	if rc.Header.GSTIN != "" {
		d.Text("GSTIN: " + rc.Header.GSTIN)
	}

	d.SetAlign(AlignLeft)
	d.Separator('-')
	d.KeyValue("Invoice: "+rc.InvoiceNo, rc.IssuedAt.Format("02/01/2006 15:04"))
	if rc.Cashier != "" {
		d.Text("Cashier: " + rc.Cashier)
	}
	if rc.Customer != "" {
		d.Text("Customer: " + rc.Customer)
	}
	d.Separator('-')

	nameW, qtyW, rateW, totalW := itemColumnWidths(d.Width())
	d.Columns([]Column{
		{Text: "Item", Width: nameW},
		{Text: "Qty", Width: qtyW, RightAlign: true},
		{Text: "Rate", Width: rateW, RightAlign: true},
		{Text: "Total", Width: totalW, RightAlign: true},
	})
	d.Separator('-')
	for _, it := range rc.Items {
		d.Columns([]Column{
			{Text: it.Name, Width: nameW},
			{Text: strconv.Itoa(it.Qty), Width: qtyW, RightAlign: true},
			{Text: common.FormatMinor(it.UnitPrice), Width: rateW, RightAlign: true},
			{Text: common.FormatMinor(it.LineTotal), Width: totalW, RightAlign: true},
		})
	}
	d.Separator('-')

	d.KeyValue("Subtotal", common.FormatMinor(rc.Subtotal))
	if rc.FlatDiscount > 0 {
		d.KeyValue("Discount", "-"+common.FormatMinor(rc.FlatDiscount))
	}
	if rc.PercentDiscount > 0 {
		d.KeyValue("Offer discount", "-"+common.FormatMinor(rc.PercentDiscount))
	}
	d.SetBold(true)
	d.KeyValue("TOTAL", common.FormatMinor(rc.Total))
	d.SetBold(false)

	d.KeyValue("Paid by", rc.PaymentMode)
	if rc.Tendered > 0 {
		d.KeyValue("Cash", common.FormatMinor(rc.Tendered))
		d.KeyValue("Change", common.FormatMinor(rc.Change))
	}
	d.Separator('-')

	d.SetAlign(AlignCenter)
	d.Text("Thank you, visit again!")
	d.Feed(1)
	d.Barcode(BarcodeCode128, rc.InvoiceNo)
	d.Feed(3)
	d.Cut()

	return d.Bytes()
}

func itemColumnWidths(width int) (name, qty, rate, total int) {
	// qty/rate/total widths are fixed; the name column absorbs the rest.
	qty, rate, total = 3, 8, 9
	name = width - qty - rate - total - 3
	if name < 8 {
		name = 8
	}
	return
}
