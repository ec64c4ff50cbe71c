package catalog

import "testing"

func TestNormalizeSKUCanonicalIsNoOp(t *testing.T) {
	for _, sku := range []string{"ACR-0001", "ACR-BRK-22", "NEW-001", "SEED-001-CHANGED"} {
		if got := NormalizeSKU(sku); got != sku {
			t.Fatalf("expected %q to be canonical, got %q", sku, got)
		}
	}
}

func TestNormalizeSKUVariantsConverge(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"acr-0001", "ACR-0001"},
		{"  ACR-0001  ", "ACR-0001"},
		{"acr 0001", "ACR-0001"},
		{"ACR0001", "ACR-0001"},
		{"acr--0001", "ACR-0001"},
		{"new-001", "NEW-001"},
		{" comp  sku ", "COMP-SKU"},
		{"", ""},
		{"acr", "ACR"},
	}
	for _, tc := range cases {
		if got := NormalizeSKU(tc.raw); got != tc.want {
			t.Fatalf("NormalizeSKU(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeSKUIsIdempotent(t *testing.T) {
	for _, raw := range []string{"acr 77", "ACR-77", "weird  sku", "acr--x--y"} {
		once := NormalizeSKU(raw)
		if twice := NormalizeSKU(once); twice != once {
			t.Fatalf("normalization not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}
