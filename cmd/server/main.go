package main // Entry point package

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/config"
	"github.com/courtbook/court-booking/internal/database"
	"github.com/courtbook/court-booking/internal/handler"
	"github.com/courtbook/court-booking/internal/middleware"
	"github.com/courtbook/court-booking/internal/queue"
	"github.com/courtbook/court-booking/internal/repository"
	"github.com/courtbook/court-booking/internal/router"
	queue_publisher "github.com/courtbook/court-booking/internal/service"
	"github.com/courtbook/court-booking/internal/slotlock"
	"github.com/courtbook/court-booking/internal/store/memstore"
)

// stores collects every persistence dependency the handlers take, so the
// MySQL and in-memory drivers can be swapped behind one seam.
type stores struct {
	users     handler.UserStore
	tokens    handler.TokenStore
	ledger    booking.Ledger
	waitlist  booking.Waitlist
	rules     booking.RuleSource
	catalog   booking.Catalog
	courts    handler.CourtStore
	equipment handler.EquipmentStore
	coaches   handler.CoachStore
	ruleAdmin handler.RuleStore
	overlaps  handler.OverlapStore
	audit     handler.AuditStore
}

func buildStores(cfg config.Config) stores {
	if cfg.StoreDriver == "memory" {
		// Dev mode: everything lives in process, nothing survives a restart.
		mem := memstore.New()
		us := memstore.NewUserStore()
		return stores{
			users:     us,
			tokens:    us,
			ledger:    mem,
			waitlist:  mem,
			rules:     mem,
			catalog:   mem,
			courts:    mem.Courts(),
			equipment: mem.EquipmentItems(),
			coaches:   mem.CoachRoster(),
			ruleAdmin: mem.Rules(),
			overlaps:  mem,
			audit:     mem,
		}
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	bookings := repository.NewBookingRepo(db)
	ruleRepo := repository.NewRuleRepo(db)
	return stores{
		users:     repository.NewUserRepo(db),
		tokens:    repository.NewTokenRepo(db),
		ledger:    bookings,
		waitlist:  repository.NewWaitlistRepo(db),
		rules:     ruleRepo,
		catalog:   repository.NewCatalog(db),
		courts:    repository.NewCourtRepo(db),
		equipment: repository.NewEquipmentRepo(db),
		coaches:   repository.NewCoachRepo(db),
		ruleAdmin: ruleRepo,
		overlaps:  bookings,
		audit:     bookings,
	}
}

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()

	st := buildStores(cfg)

	// Redis backs the distributed slot lock, rate limiting and the response
	// cache. All three degrade gracefully when the client is nil.
	rdb := config.NewRedisClient()

	var locks slotlock.Locker = slotlock.NewMutexMap()
	if rdb != nil {
		locks = slotlock.NewRedisLocker(rdb, 15*time.Second, 50*time.Millisecond)
	}

	engine := booking.New(st.ledger, st.waitlist, st.rules, st.catalog, locks,
		booking.WithLockTimeout(time.Duration(cfg.LockTimeoutSec)*time.Second),
		booking.WithHoldWindow(time.Duration(cfg.HoldWindowMin)*time.Minute),
		booking.WithNotifier(queue_publisher.NewNotifier()),
	)

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	authH := handler.NewAuthHandler(cfg, st.users, st.tokens)
	bookH := handler.NewBookingHandler(engine, st.ledger)
	availH := handler.NewAvailabilityHandler(st.courts, st.equipment, st.coaches, st.overlaps)
	catalogH := handler.NewAdminCatalogHandler(st.courts, st.equipment, st.coaches, st.audit)
	ruleH := handler.NewAdminRuleHandler(st.ruleAdmin)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, availH, bookH)
	router.RegisterBooking(e, bookH, cfg.JWTSecret)
	router.RegisterAdmin(e, catalogH, ruleH, bookH, cfg.JWTSecret)

	// Background consumer for booking.confirmed / waitlist.promoted events.
	// It reconnects with backoff on broker failures.
	go func() {
		if err := queue.StartConsumer(); err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s store=%s)", addr, cfg.Env, cfg.StoreDriver)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
