package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront/internal/domain"
	checkoutsvc "storefront/internal/service/checkout"
	orderssvc "storefront/internal/service/orders"
)

type placeOrderRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	Phone           string `json:"phone"`
	PaymentMethod   string `json:"paymentMethod"`
}

// placeOrderHandler captures the cart snapshot and runs the placement saga.
// Clients retrying a timed-out placement must resend the same
// Idempotency-Key header.
func placeOrderHandler(svc *checkoutsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid body")
			return
		}

		snapshot, err := svc.Snapshot(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}

		ord, err := svc.PlaceOrder(c.Request.Context(), checkoutsvc.PlaceOrderInput{
			UserID:          userID(c),
			Snapshot:        snapshot,
			ShippingAddress: req.ShippingAddress,
			Phone:           req.Phone,
			PaymentMethod:   req.PaymentMethod,
			IdempotencyKey:  c.GetHeader("Idempotency-Key"),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ord)
	}
}

func listOrdersHandler(svc *orderssvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.ListForUser(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": result})
	}
}

func getOrderHandler(svc *orderssvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ord, err := svc.GetForUser(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord)
	}
}

func listAllOrdersHandler(svc *orderssvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.ListAll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": result})
	}
}

func updateOrderStatusHandler(svc *orderssvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status string `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid body")
			return
		}
		ord, err := svc.AdvanceStatus(c.Request.Context(), c.Param("id"), domain.OrderStatus(req.Status))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord)
	}
}

func overridePaymentHandler(svc *orderssvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status string `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid body")
			return
		}
		ord, err := svc.OverridePaymentStatus(c.Request.Context(), c.Param("id"), domain.PaymentStatus(req.Status))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord)
	}
}
