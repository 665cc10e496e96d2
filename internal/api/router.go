package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/redis"
)

// Dependencies holds all handler instances and middleware for route wiring.
type Dependencies struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Messages      *MessageHandler
	Campaigns     *CampaignHandler
	Donations     *DonationHandler
	Announcements *AnnouncementHandler
	Sermons       *SermonHandler
	Gateway       *gateway.Manager

	TokenService *auth.TokenService
	Redis        *redis.Client
}

// SetupRouter registers all API routes on the Echo instance.
func SetupRouter(e *echo.Echo, deps *Dependencies) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/gateway", deps.Gateway.HandleWebSocket)

	v1 := e.Group("/api/v1")

	// Auth: no token, stricter rate limit
	authGroup := v1.Group("/auth",
		authLimit.Middleware(deps.Redis),
	)
	authGroup.POST("/register", deps.Auth.Register)
	authGroup.POST("/login", deps.Auth.Login)
	authGroup.POST("/refresh", deps.Auth.Refresh)

	// Signed by the payment processor, not by a user.
	v1.POST("/webhooks/payments", deps.Donations.Webhook)

	// Guests may give without an account.
	v1.POST("/donations/checkout", deps.Donations.Checkout,
		deps.TokenService.OptionalMiddleware(),
		checkoutLimit.Middleware(deps.Redis),
	)

	protected := v1.Group("", deps.TokenService.Middleware(),
		apiLimit.Middleware(deps.Redis),
	)

	protected.POST("/auth/logout", deps.Auth.Logout)

	// Users
	protected.GET("/users/@me", deps.Users.GetMe)
	protected.PATCH("/users/@me", deps.Users.UpdateMe)
	protected.PUT("/users/:id/role", deps.Users.SetRole)

	// Rooms and messages
	protected.GET("/rooms", deps.Messages.ListRooms)
	protected.POST("/rooms", deps.Messages.CreateRoom)
	protected.GET("/rooms/:id/messages", deps.Messages.GetMessages)
	protected.POST("/rooms/:id/messages", deps.Messages.SendMessage, chatSendLimit.Middleware(deps.Redis))
	protected.GET("/rooms/:id/messages/:message_id", deps.Messages.GetMessage)
	protected.DELETE("/rooms/:id/messages/:message_id", deps.Messages.DeleteMessage)

	// Campaigns
	protected.GET("/campaigns", deps.Campaigns.List)
	protected.POST("/campaigns", deps.Campaigns.Create)
	protected.GET("/campaigns/:id", deps.Campaigns.Get)
	protected.PATCH("/campaigns/:id", deps.Campaigns.Update)
	protected.GET("/campaigns/:id/donations", deps.Campaigns.ListDonations)

	// Announcements and media
	protected.GET("/announcements", deps.Announcements.List)
	protected.POST("/announcements", deps.Announcements.Create)
	protected.GET("/sermons", deps.Sermons.List)
	protected.POST("/sermons", deps.Sermons.Upload)
}
