package pricing

// Money represents a monetary value stored in minor units (paise).
type Money = int64

// MaxBps is the basis-point representation of a 100% discount.
const MaxBps = 10000

// Line describes a cart line used for pricing calculation.
type Line struct {
	Qty         int
	UnitPrice   Money
	DiscountBps int
}

// Summary aggregates computed pricing components for a sale.
type Summary struct {
	Subtotal        Money
	FlatDiscount    Money
	PercentDiscount Money
	Total           Money
	Tendered        Money
	Change          Money
}

// ClampBps restricts a basis-point discount to the [0, 10000] range.
// Clamping happens here, once, rather than at every call site.
func ClampBps(bps int) int {
	if bps < 0 {
		return 0
	}
	if bps > MaxBps {
		return MaxBps
	}
	return bps
}

// UnitPrice computes the discounted unit price for a line, rounded half-up
// to a whole minor unit. The result never exceeds the base price.
func UnitPrice(base Money, discountBps int) Money {
	if base <= 0 {
		return 0
	}
	bps := ClampBps(discountBps)
	return mulBpsRound(base, MaxBps-bps)
}

// Subtotal sums discounted line totals in a stable left-to-right fold.
// Each line is rounded via UnitPrice before multiplication so that the
// per-line amounts match what the customer sees printed. Lines with a
// non-positive quantity contribute nothing. An empty cart yields 0.
func Subtotal(lines []Line) Money {
	var total Money
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		total += UnitPrice(ln.UnitPrice, ln.DiscountBps) * Money(ln.Qty)
	}
	return total
}

// OrderTotal applies a flat currency deduction followed by a clamped
// percentage deduction. The flat deduction is floored at zero; negative
// flat discounts are the caller's responsibility to reject.
func OrderTotal(subtotal, flatDiscount Money, percentBps int) Money {
	base := subtotal - flatDiscount
	if base < 0 {
		base = 0
	}
	bps := ClampBps(percentBps)
	return mulBpsRound(base, MaxBps-bps)
}

// ChangeDue computes cash change, floored at zero. Absent or unparseable
// tender must be normalised to 0 by the caller; this function never fails.
func ChangeDue(tendered, payable Money) Money {
	change := tendered - payable
	if change < 0 {
		return 0
	}
	return change
}

// Compute derives the full summary for a cart in one pass.
func Compute(lines []Line, flatDiscount Money, percentBps int, tendered Money) Summary {
	subtotal := Subtotal(lines)
	total := OrderTotal(subtotal, flatDiscount, percentBps)

	flat := flatDiscount
	if flat > subtotal {
		flat = subtotal
	}
	if flat < 0 {
		flat = 0
	}
	afterFlat := subtotal - flat
	return Summary{
		Subtotal:        subtotal,
		FlatDiscount:    flat,
		PercentDiscount: afterFlat - total,
		Total:           total,
		Tendered:        tendered,
		Change:          ChangeDue(tendered, total),
	}
}

// mulBpsRound multiplies amount by bps/10000 rounding half-up.
func mulBpsRound(amount Money, bps int) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	product := amount * Money(bps)
	return (product + MaxBps/2) / MaxBps
}
