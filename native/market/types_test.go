package market

import (
	"math/big"
	"testing"
)

func TestPlatformFeeFloors(t *testing.T) {
	cases := []struct {
		amount  int64
		percent uint64
		want    int64
	}{
		{500, 1, 5},
		{100, 1, 1},
		{99, 1, 0},
		{150, 1, 1},
		{1000, 10, 100},
		{33, 3, 0},
		{500, 0, 0},
		{0, 5, 0},
	}
	for _, tc := range cases {
		got := PlatformFee(big.NewInt(tc.amount), tc.percent)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("PlatformFee(%d, %d) = %s, want %d", tc.amount, tc.percent, got, tc.want)
		}
	}
	if got := PlatformFee(nil, 5); got.Sign() != 0 {
		t.Fatalf("nil amount must yield zero fee, got %s", got)
	}
}

func TestPayoutPlusFeeReconciles(t *testing.T) {
	for _, amount := range []int64{1, 99, 100, 499, 500, 12345} {
		for percent := uint64(0); percent <= MaxFeePercent; percent++ {
			total := big.NewInt(amount)
			fee := PlatformFee(total, percent)
			payout := new(big.Int).Sub(total, fee)
			if new(big.Int).Add(payout, fee).Cmp(total) != 0 {
				t.Fatalf("payout %s + fee %s != %s at %d%%", payout, fee, total, percent)
			}
			if fee.Sign() < 0 || payout.Sign() < 0 {
				t.Fatalf("negative split for %d at %d%%", amount, percent)
			}
		}
	}
}

func TestListingStatePredicates(t *testing.T) {
	custodial := map[ListingState]bool{
		ListingSold:      true,
		ListingDelivered: true,
		ListingDisputed:  true,
	}
	terminal := map[ListingState]bool{
		ListingSettled:   true,
		ListingCancelled: true,
	}
	for _, s := range []ListingState{ListingActive, ListingSold, ListingDelivered, ListingSettled, ListingCancelled, ListingDisputed} {
		if !s.Valid() {
			t.Fatalf("state %v must be valid", s)
		}
		if s.Custodial() != custodial[s] {
			t.Fatalf("state %v custodial mismatch", s)
		}
		if s.Terminal() != terminal[s] {
			t.Fatalf("state %v terminal mismatch", s)
		}
	}
	if ListingState(0).Valid() || ListingState(9).Valid() {
		t.Fatalf("out-of-range states must be invalid")
	}
}

func TestTotalCost(t *testing.T) {
	listing := &Listing{EnergyAmount: 100, PricePerUnit: big.NewInt(5)}
	if got := listing.TotalCost(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %s", got)
	}
	var nilListing *Listing
	if got := nilListing.TotalCost(); got.Sign() != 0 {
		t.Fatalf("nil listing must cost zero, got %s", got)
	}
}

func TestSanitizeListing(t *testing.T) {
	valid := &Listing{
		ID:           1,
		EnergyAmount: 10,
		PricePerUnit: big.NewInt(2),
		Pricing:      PricingFixed,
		State:        ListingActive,
	}
	sanitized, err := SanitizeListing(valid)
	if err != nil {
		t.Fatalf("sanitize valid: %v", err)
	}
	if sanitized.MinPrice == nil || sanitized.MinPrice.Sign() != 0 {
		t.Fatalf("nil min price must normalise to zero")
	}
	// The original is untouched.
	sanitized.PricePerUnit.SetInt64(99)
	if valid.PricePerUnit.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("sanitize mutated the input")
	}

	if _, err := SanitizeListing(nil); err == nil {
		t.Fatalf("expected error for nil listing")
	}
	broken := valid.Clone()
	broken.ID = 0
	if _, err := SanitizeListing(broken); err == nil {
		t.Fatalf("expected error for zero id")
	}
	broken = valid.Clone()
	broken.EnergyAmount = 0
	if _, err := SanitizeListing(broken); err == nil {
		t.Fatalf("expected error for zero energy")
	}
	broken = valid.Clone()
	broken.PricePerUnit = big.NewInt(0)
	if _, err := SanitizeListing(broken); err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestVaultAddressStable(t *testing.T) {
	first := VaultAddress()
	second := VaultAddress()
	if first != second {
		t.Fatalf("vault address must be deterministic")
	}
	if first == ([20]byte{}) {
		t.Fatalf("vault address must not be zero")
	}
}

func TestParsePricingModel(t *testing.T) {
	fixed, err := ParsePricingModel("fixed")
	if err != nil || fixed != PricingFixed {
		t.Fatalf("parse fixed: %v %v", fixed, err)
	}
	auction, err := ParsePricingModel("auction")
	if err != nil || auction != PricingAuction {
		t.Fatalf("parse auction: %v %v", auction, err)
	}
	if _, err := ParsePricingModel("dutch"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
