package httpserver

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	catalogsvc "storefront/internal/service/catalog"
	checkoutsvc "storefront/internal/service/checkout"
	orderssvc "storefront/internal/service/orders"
	wishlistsvc "storefront/internal/service/wishlist"
)

// Deps carries the services the router exposes.
type Deps struct {
	CatalogSvc  *catalogsvc.Service
	CartSvc     *cartsvc.Service
	WishlistSvc *wishlistsvc.Service
	CheckoutSvc *checkoutsvc.Service
	OrdersSvc   *orderssvc.Service
	ProfileRepo profileRepo
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(corsOrigins) == 1 && corsOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = corsOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, headerUserID, headerUserRole, "Idempotency-Key")
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	api := router.Group("/api")
	api.GET("/categories", listCategoriesHandler(deps.CatalogSvc))
	api.GET("/products", listProductsHandler(deps.CatalogSvc))
	api.GET("/products/:id", getProductHandler(deps.CatalogSvc))

	authed := api.Group("")
	authed.Use(requireUser())
	authed.GET("/cart", getCartHandler(deps.CartSvc))
	authed.POST("/cart", addCartItemHandler(deps.CartSvc))
	authed.PATCH("/cart/:itemId", changeCartQuantityHandler(deps.CartSvc))
	authed.DELETE("/cart/:itemId", removeCartItemHandler(deps.CartSvc))

	authed.GET("/wishlist", listWishlistHandler(deps.WishlistSvc))
	authed.POST("/wishlist", addWishlistItemHandler(deps.WishlistSvc))
	authed.DELETE("/wishlist/:itemId", removeWishlistItemHandler(deps.WishlistSvc))

	authed.POST("/orders", placeOrderHandler(deps.CheckoutSvc))
	authed.GET("/orders", listOrdersHandler(deps.OrdersSvc))
	authed.GET("/orders/:id", getOrderHandler(deps.OrdersSvc))

	authed.GET("/profile", getProfileHandler(deps.ProfileRepo))
	authed.PATCH("/profile", updateProfileHandler(deps.ProfileRepo))

	admin := api.Group("/admin")
	admin.Use(requireUser(), requireRole(domain.RoleAdmin))
	admin.POST("/products", createProductHandler(deps.CatalogSvc))
	admin.PUT("/products/:id", updateProductHandler(deps.CatalogSvc))
	admin.DELETE("/products/:id", deleteProductHandler(deps.CatalogSvc))
	admin.POST("/categories", createCategoryHandler(deps.CatalogSvc))
	admin.GET("/orders", listAllOrdersHandler(deps.OrdersSvc))
	admin.PATCH("/orders/:id/status", updateOrderStatusHandler(deps.OrdersSvc))
	admin.PATCH("/orders/:id/payment", overridePaymentHandler(deps.OrdersSvc))

	return router
}
