package catalog

import "strings"

// SKUPrefix is the catalog's own brand prefix. Supplier files are
// inconsistent about casing and separators ("acr 0001", "ACR0001"); all
// variants normalize to the canonical "ACR-0001" so they never produce
// spurious diffs. SKUs without the prefix pass through unchanged apart from
// trimming, case folding and whitespace collapsing.
const SKUPrefix = "ACR"

// NormalizeSKU returns the canonical form of a SKU. Normalizing an already
// canonical SKU is a no-op.
func NormalizeSKU(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), "-")

	rest, ok := strings.CutPrefix(s, SKUPrefix)
	if !ok {
		return s
	}
	rest = strings.TrimLeft(rest, "-")
	if rest == "" {
		return SKUPrefix
	}
	return SKUPrefix + "-" + rest
}
