package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/space-reservation-backend/internal/auth"
	"github.com/nekogravitycat/space-reservation-backend/internal/ratelimit"
	"github.com/nekogravitycat/space-reservation-backend/internal/reservation"
	reservationHttp "github.com/nekogravitycat/space-reservation-backend/internal/reservation/http"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
	resourceHttp "github.com/nekogravitycat/space-reservation-backend/internal/resource/http"
	"github.com/nekogravitycat/space-reservation-backend/internal/user"
	userHttp "github.com/nekogravitycat/space-reservation-backend/internal/user/http"
)

// Config carries everything the router needs.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	Logger       zerolog.Logger

	UserService        user.Service
	ResourceService    resource.Service
	ReservationService reservation.Service
	JWTManager         *auth.JWTManager

	// BookingLimiter throttles reservation creation per user. Nil disables it.
	BookingLimiter ratelimit.Limiter
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	// - RequestLogger: structured access log plus request-scoped logger.
	r.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	// Configure CORS (Cross-Origin Resource Sharing).
	// cors.New panics on an empty origin list, so no origins means no CORS.
	if origins := allowedOrigins(cfg.IsProduction, cfg.ProdOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
		r.Use(cors.New(corsConfig))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := Authenticate(cfg.JWTManager, cfg.UserService)
	sysAdminMiddleware := RequireSystemAdmin()

	var bookingLimiter gin.HandlerFunc
	if cfg.BookingLimiter != nil {
		bookingLimiter = ratelimit.Middleware(cfg.BookingLimiter, auth.GetUserID)
	}

	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	resourceHandler := resourceHttp.NewHandler(cfg.ResourceService)
	reservationHandler := reservationHttp.NewHandler(cfg.ReservationService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		userHttp.RegisterRoutes(v1, userHandler, authMiddleware, sysAdminMiddleware)
		resourceHttp.RegisterRoutes(v1, resourceHandler, authMiddleware, sysAdminMiddleware)
		reservationHttp.RegisterRoutes(v1, reservationHandler, authMiddleware, sysAdminMiddleware, bookingLimiter)
	}

	return r
}

func allowedOrigins(isProduction bool, prodOrigins string) []string {
	if !isProduction {
		return []string{
			"http://localhost:3000",
			"http://localhost:8081", // Swagger
		}
	}

	var origins []string
	for _, o := range strings.Split(prodOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
