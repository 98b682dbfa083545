package domain

import "time"

// Payment methods accepted at checkout. Cash on delivery settles offline;
// the rest require a gateway authorization before the order counts as paid.
const (
	PaymentPhonePe   = "phonepe"
	PaymentPaytm     = "paytm"
	PaymentAmazonPay = "amazonpay"
	PaymentCOD       = "cod"
)

// PaymentMethodSupported reports membership in the closed method set.
func PaymentMethodSupported(method string) bool {
	switch method {
	case PaymentPhonePe, PaymentPaytm, PaymentAmazonPay, PaymentCOD:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderConfirmed: true, OrderCancelled: true},
	OrderConfirmed: {OrderShipped: true, OrderCancelled: true},
	OrderShipped:   {OrderDelivered: true},
	OrderDelivered: {},
	OrderCancelled: {},
}

// CanTransition reports whether an order may move from one fulfillment
// status to another.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	TotalCents      int64         `json:"totalCents"`
	PaymentMethod   string        `json:"paymentMethod"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	OrderStatus     OrderStatus   `json:"orderStatus"`
	ShippingAddress string        `json:"shippingAddress"`
	Phone           string        `json:"phone"`
	IdempotencyKey  string        `json:"-"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Items           []OrderItem   `json:"items,omitempty"`
}

// OrderItem records the unit price at purchase time. It is never recomputed
// from the product's current price.
type OrderItem struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"priceCents"`
	CreatedAt  time.Time `json:"createdAt"`
}
