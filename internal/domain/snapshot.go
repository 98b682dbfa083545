package domain

import "time"

// SnapshotLine is one cart line frozen at the start of checkout.
type SnapshotLine struct {
	CartItemID string `json:"cartItemId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// CartSnapshot is an immutable copy of the cart captured once per checkout
// attempt. Items added to the cart afterwards are not part of the attempt
// and must survive the final cart clear.
type CartSnapshot struct {
	UserID     string         `json:"userId"`
	Lines      []SnapshotLine `json:"lines"`
	CapturedAt time.Time      `json:"capturedAt"`
}

// TotalCents sums quantity times frozen unit price over all lines.
func (s CartSnapshot) TotalCents() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.PriceCents * int64(l.Quantity)
	}
	return total
}

// CartItemIDs returns the captured cart row identifiers, used to clear
// exactly the purchased rows.
func (s CartSnapshot) CartItemIDs() []string {
	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.CartItemID)
	}
	return ids
}
