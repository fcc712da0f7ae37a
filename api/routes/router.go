package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/primex-iptv/primex-backend/api/controllers"
	"github.com/primex-iptv/primex-backend/api/middleware"
	"github.com/primex-iptv/primex-backend/internal/activation"
	"github.com/primex-iptv/primex-backend/internal/audit"
	"github.com/primex-iptv/primex-backend/internal/auth"
	"github.com/primex-iptv/primex-backend/internal/catalog"
	"github.com/primex-iptv/primex-backend/internal/codes"
	"github.com/primex-iptv/primex-backend/internal/redemption"
	"github.com/primex-iptv/primex-backend/pkg/auth/session"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/enums"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface depends on.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *gorm.DB
	Redis        *redis.Client
	Sessions     session.Checker
	SessionMgr   *session.Manager
	AuthService  auth.Service
	Redemption   *redemption.Service
	Activation   *activation.Service
	Codes        *codes.Service
	Devices      *activation.Repository
	Catalog      *catalog.Repository
	Audit        *audit.Repository
	PromGatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginNameLimit,
	)
	redeemPolicy := middleware.NewAuthRateLimitPolicy(
		"redeem",
		cfg.AuthRateLimit.RedeemWindow,
		cfg.AuthRateLimit.RedeemIPLimit,
		cfg.AuthRateLimit.RedeemCodeLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(p.DB, logg))
	})

	if p.PromGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.PromGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(redeemPolicy, p.Redis, logg)).Post("/code-login", controllers.AuthCodeLogin(p.Redemption, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AccountAuthLogin(p.AuthService, logg))
		r.Post("/refresh", controllers.AccountAuthRefresh(p.AuthService, logg))
	})

	r.Route("/api/v1/device", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(redeemPolicy, p.Redis, logg)).Post("/register", controllers.DeviceRegister(p.Activation, logg))
		r.Get("/status", controllers.DeviceStatus(p.Activation, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/auth/login", controllers.AdminAuthLogin(p.AuthService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, enums.PrincipalKindOperator, p.Sessions, logg))

			r.Get("/ping", controllers.AdminPing())
			r.Post("/auth/logout", controllers.AdminAuthLogout(p.AuthService, logg))
			r.Post("/auth/logout-all", controllers.AdminAuthLogoutAll(p.AuthService, logg))
			r.Get("/auth/sessions", controllers.AdminAuthSessions(p.SessionMgr, logg))

			r.Route("/device", func(r chi.Router) {
				r.Post("/activate", controllers.AdminDeviceActivate(p.Activation, logg))
				r.Post("/deactivate", controllers.AdminDeviceDeactivate(p.Activation, logg))
				r.Get("/history", controllers.AdminDeviceHistory(p.Devices, logg))
			})
			r.Get("/devices", controllers.AdminDeviceList(p.Devices, logg))

			r.Route("/codes", func(r chi.Router) {
				r.Post("/", controllers.AdminCodesGenerate(p.Codes, logg))
				r.Get("/", controllers.AdminCodesList(p.Codes, logg))
				r.Get("/stats", controllers.AdminCodeStats(p.Codes, logg))
				r.Get("/export", controllers.AdminCodesExport(p.Codes, logg))
				r.Post("/bulk-delete", controllers.AdminCodesBulkDelete(p.Codes, logg))
				r.Get("/{id}", controllers.AdminCodeGet(p.Codes, logg))
				r.Patch("/{id}", controllers.AdminCodeUpdate(p.Codes, logg))
				r.Post("/{id}/disable", controllers.AdminCodeDisable(p.Codes, logg))
				r.Delete("/{id}", controllers.AdminCodeDelete(p.Codes, logg))
			})

			r.Route("/plans", func(r chi.Router) {
				r.Post("/", controllers.AdminPlanCreate(p.Catalog, logg))
				r.Get("/", controllers.AdminPlanList(p.Catalog, logg))
				r.Get("/{id}", controllers.AdminPlanGet(p.Catalog, logg))
				r.Patch("/{id}", controllers.AdminPlanUpdate(p.Catalog, logg))
				r.Delete("/{id}", controllers.AdminPlanDelete(p.Catalog, logg))
			})

			r.Get("/activity", controllers.AdminActivityList(p.Audit, logg))

			r.Get("/servers", controllers.AdminServerList(p.Catalog, logg))
			r.Get("/channels", controllers.AdminChannelList(p.Catalog, logg))
			r.Get("/categories", controllers.AdminCategoryList(p.Catalog, logg))
		})
	})

	return r
}
