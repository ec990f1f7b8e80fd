package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/space-reservation-backend/internal/api"
	"github.com/nekogravitycat/space-reservation-backend/internal/auth"
	"github.com/nekogravitycat/space-reservation-backend/internal/events"
	"github.com/nekogravitycat/space-reservation-backend/internal/jobs"
	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/ratelimit"
	"github.com/nekogravitycat/space-reservation-backend/internal/reservation"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
	"github.com/nekogravitycat/space-reservation-backend/internal/user"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	JWTSecret    string
	JWTTTL       time.Duration
	BcryptCost   int
	Logger       zerolog.Logger

	Gateway   payment.Gateway
	Publisher events.Publisher
	// Limiter may be nil when Redis is not configured.
	Limiter ratelimit.Limiter

	Location       *time.Location
	PaymentTimeout time.Duration
	PendingTTL     time.Duration
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router             *gin.Engine
	JWTManager         *auth.JWTManager
	ReservationService reservation.Service
	Sweeper            *jobs.PendingSweeper
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// User Module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher)

	// Resource Module
	resRepo := resource.NewPgxRepository(cfg.DBPool)
	resService := resource.NewService(resRepo)

	// Reservation Module
	reservationRepo := reservation.NewPgxRepository(cfg.DBPool)
	reservationService := reservation.NewService(
		reservationRepo,
		resService,
		cfg.Gateway,
		cfg.Publisher,
		cfg.Logger,
		reservation.Config{
			Location:       cfg.Location,
			GatewayTimeout: cfg.PaymentTimeout,
		},
	)

	sweeper := jobs.NewPendingSweeper(reservationService, cfg.PendingTTL, cfg.Logger)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:       cfg.IsProduction,
		ProdOrigins:        cfg.ProdOrigins,
		Logger:             cfg.Logger,
		UserService:        userService,
		ResourceService:    resService,
		ReservationService: reservationService,
		JWTManager:         jwtManager,
		BookingLimiter:     cfg.Limiter,
	})

	return &Container{
		Router:             router,
		JWTManager:         jwtManager,
		ReservationService: reservationService,
		Sweeper:            sweeper,
	}
}
