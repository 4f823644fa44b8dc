package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"feeledger_backend/internals/configs"
	authMiddleware "feeledger_backend/internals/middlewares/auth_school"
	featuresMiddleware "feeledger_backend/internals/middlewares/features"
	routeDetails "feeledger_backend/internals/route/details"
)

var startTime time.Time

// Options carries the infrastructure hooks; zero values disable them.
type Options struct {
	Ping      func() error
	Blacklist func(rawToken string) (bool, error)
}

// SetupRoutes mounts the public, student (/api/u) and school admin
// (/api/a/:school_id) groups.
func SetupRoutes(app *fiber.App, cfg configs.AppConfig, f *routeDetails.Finance, o Options) {
	startTime = time.Now()

	BaseRoutes(app, o.Ping)

	auth := authMiddleware.AuthJWT(authMiddleware.AuthJWTOpts{
		Secret:              cfg.JWTSecret,
		BlacklistChecker:    o.Blacklist,
		AllowCookieFallback: true,
	})

	// ===================== GROUPS =====================

	log.Println("[INFO] Setting up PUBLIC group...")
	public := app.Group("/api/public")

	log.Println("[INFO] Setting up STUDENT group (Auth + student only)...")
	user := app.Group("/api/u", auth, featuresMiddleware.OnlyStudent())

	log.Println("[INFO] Setting up ADMIN group (Auth + school scope)...")
	admin := app.Group("/api/a/:school_id", auth, featuresMiddleware.IsSchoolAdmin())

	// ===================== MOUNT ROUTES =====================

	log.Println("[INFO] Mounting Finance routes...")
	routeDetails.FinancePublicRoutes(public, f)
	routeDetails.FinanceUserRoutes(user, f)
	routeDetails.FinanceAdminRoutes(admin, f)
}
