package pricing

import "testing"

func TestUnitPriceNeverExceedsBase(t *testing.T) {
	cases := []struct {
		base Money
		bps  int
	}{
		{20000, 0},
		{20000, 5000},
		{9999, 3333},
		{1, 1},
		{100, 10000},
	}
	for _, tc := range cases {
		got := UnitPrice(tc.base, tc.bps)
		if got > tc.base {
			t.Fatalf("UnitPrice(%d, %d) = %d exceeds base", tc.base, tc.bps, got)
		}
	}
	if got := UnitPrice(20000, 0); got != 20000 {
		t.Fatalf("zero discount should be identity, got %d", got)
	}
}

func TestUnitPriceClampsOutOfRange(t *testing.T) {
	if got := UnitPrice(10000, -500); got != 10000 {
		t.Fatalf("negative discount should clamp to 0%%, got %d", got)
	}
	if got := UnitPrice(10000, 15000); got != 0 {
		t.Fatalf("discount above 100%% should clamp, got %d", got)
	}
}

func TestUnitPriceRoundsHalfUp(t *testing.T) {
	// 333 paise at 10% off = 299.7 -> 300
	if got := UnitPrice(333, 1000); got != 300 {
		t.Fatalf("expected 300, got %d", got)
	}
}

func TestSubtotalScenario(t *testing.T) {
	// cart = [{base:200, discount:0, qty:2}, {base:100, discount:50%, qty:1}]
	lines := []Line{
		{Qty: 2, UnitPrice: 20000, DiscountBps: 0},
		{Qty: 1, UnitPrice: 10000, DiscountBps: 5000},
	}
	if got := Subtotal(lines); got != 45000 {
		t.Fatalf("expected subtotal 45000, got %d", got)
	}
}

func TestSubtotalEmptyAndNonNegative(t *testing.T) {
	if got := Subtotal(nil); got != 0 {
		t.Fatalf("empty cart should yield 0, got %d", got)
	}
	lines := []Line{{Qty: 0, UnitPrice: 5000}, {Qty: -3, UnitPrice: 5000}}
	if got := Subtotal(lines); got != 0 {
		t.Fatalf("non-positive quantities should contribute nothing, got %d", got)
	}
}

func TestOrderTotalScenario(t *testing.T) {
	// subtotal=450, flat=50, percent=10% -> base=400, total=360
	if got := OrderTotal(45000, 5000, 1000); got != 36000 {
		t.Fatalf("expected 36000, got %d", got)
	}
}

func TestOrderTotalClampsPercent(t *testing.T) {
	// percentDiscount=150% clamps to 100%
	if got := OrderTotal(45000, 0, 15000); got != 0 {
		t.Fatalf("150%% discount should clamp to 100%%, got %d", got)
	}
	if got := OrderTotal(45000, 0, 0); got != 45000 {
		t.Fatalf("no discounts should be identity, got %d", got)
	}
}

func TestOrderTotalFlooredAtZero(t *testing.T) {
	if got := OrderTotal(1000, 5000, 0); got != 0 {
		t.Fatalf("flat discount above subtotal should floor at 0, got %d", got)
	}
}

func TestOrderTotalMonotone(t *testing.T) {
	subtotal := Money(45000)
	prev := OrderTotal(subtotal, 0, 0)
	for flat := Money(0); flat <= 50000; flat += 2500 {
		got := OrderTotal(subtotal, flat, 0)
		if got > prev {
			t.Fatalf("total increased when flat discount grew: %d -> %d", prev, got)
		}
		prev = got
	}
	prev = OrderTotal(subtotal, 0, 0)
	for bps := 0; bps <= 12000; bps += 500 {
		got := OrderTotal(subtotal, 0, bps)
		if got > prev {
			t.Fatalf("total increased when percent discount grew: %d -> %d", prev, got)
		}
		prev = got
	}
}

func TestChangeDueScenario(t *testing.T) {
	if got := ChangeDue(40000, 36000); got != 4000 {
		t.Fatalf("expected change 4000, got %d", got)
	}
	if got := ChangeDue(30000, 36000); got != 0 {
		t.Fatalf("short tender should yield 0, got %d", got)
	}
}

func TestComputeIdempotent(t *testing.T) {
	lines := []Line{
		{Qty: 2, UnitPrice: 20000},
		{Qty: 1, UnitPrice: 10000, DiscountBps: 5000},
	}
	first := Compute(lines, 5000, 1000, 40000)
	second := Compute(lines, 5000, 1000, 40000)
	if first != second {
		t.Fatalf("compute is not idempotent: %+v vs %+v", first, second)
	}
	if first.Subtotal != 45000 || first.Total != 36000 || first.Change != 4000 {
		t.Fatalf("unexpected summary: %+v", first)
	}
	if first.FlatDiscount != 5000 || first.PercentDiscount != 4000 {
		t.Fatalf("unexpected discount breakdown: %+v", first)
	}
}
