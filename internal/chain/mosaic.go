package chain

import "strings"

// MosaicQuantity is the result of extracting one mosaic out of a transfer.
// The zero value means "not found".
type MosaicQuantity struct {
	Quantity  int64
	Recipient string
}

// ExtractMosaic locates the mosaic with the given namespace:name within a
// transaction's mosaic list and computes its effective quantity.
//
// The transaction's numeric amount field acts as a quantity multiplier scaled
// down by divisibility. The multiplier floors to at least 1 so a sub-unit
// multiplier field never zeroes out a valid transfer. This is the one
// multiplier rule for the whole codebase; ExtractAmount relies on it too.
func ExtractMosaic(tx *Transaction, fqn string, divisibility int) MosaicQuantity {
	if tx == nil || fqn == "" {
		return MosaicQuantity{}
	}
	if tx.Type == TypeMultisig && tx.OtherTrans == nil {
		return MosaicQuantity{}
	}
	content := tx.Content()
	if len(content.Mosaics) == 0 {
		return MosaicQuantity{}
	}
	mult := multiplier(content.Amount, divisibility)
	for _, m := range content.Mosaics {
		if strings.EqualFold(m.MosaicID.FQN(), fqn) {
			return MosaicQuantity{
				Quantity:  m.Quantity * mult,
				Recipient: content.Recipient,
			}
		}
	}
	return MosaicQuantity{}
}

func multiplier(amount int64, divisibility int) int64 {
	scale := int64(1)
	for i := 0; i < divisibility; i++ {
		scale *= 10
	}
	m := amount / scale
	if m < 1 {
		return 1
	}
	return m
}
