package events

import "time"

const TopicOrderPlaced = "storefront.order.placed"

// OrderPlaced is published after an order and its line items are durable.
// Consumers must tolerate duplicates; the order ID is the message key.
type OrderPlaced struct {
	OrderID       string            `json:"orderId"`
	UserID        string            `json:"userId"`
	TotalCents    int64             `json:"totalCents"`
	PaymentMethod string            `json:"paymentMethod"`
	PaymentStatus string            `json:"paymentStatus"`
	Lines         []OrderPlacedLine `json:"lines"`
	PlacedAt      time.Time         `json:"placedAt"`
}

type OrderPlacedLine struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}
