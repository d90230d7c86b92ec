package services

// DefaultTaxBasisPoints is the flat sales tax applied to the cart subtotal.
const DefaultTaxBasisPoints = 825

// TaxPolicy computes the tax in cents for a subtotal in cents.
type TaxPolicy func(subtotal int64) int64

// FlatTaxPolicy taxes the subtotal at a fixed rate expressed in basis points,
// rounding half cents up. Tax applies to the subtotal only, never to shipping.
func FlatTaxPolicy(basisPoints int64) TaxPolicy {
	return func(subtotal int64) int64 {
		if subtotal <= 0 || basisPoints <= 0 {
			return 0
		}
		return (subtotal*basisPoints + 5000) / 10000
	}
}
