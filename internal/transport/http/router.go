package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/handlers"
)

type Deps struct {
	DB            *gorm.DB
	AuthHandler   *handlers.AuthHandler
	ItemHandler   *handlers.ItemHandler
	SaleHandler   *handlers.SaleHandler
	SearchHandler *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.GET("/verify/:token", d.AuthHandler.Verify)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	auth.POST("/reset-password/:token", d.AuthHandler.ResetPassword)

	items := api.Group("/items")
	items.GET("", d.ItemHandler.GetItems)
	items.POST("", d.ItemHandler.CreateItem)
	items.GET("/search", d.SearchHandler.SearchItems)
	items.DELETE("/:id", d.ItemHandler.DeleteItem)
	items.PATCH("/:id", d.ItemHandler.AdjustQuantity)

	sales := api.Group("/sales")
	sales.POST("", d.SaleHandler.CreateSale)
	sales.GET("/summary", d.SaleHandler.Summary)
	sales.GET("/trend", d.SaleHandler.Trend)
}
