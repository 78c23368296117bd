package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/geocoder89/accounthub/internal/tokencache"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, tc *tokencache.Cache, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := handlers.RegisterValidations(); err != nil {
		log.Error("could not register validations", "err", err)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(otelgin.Middleware("accounthub"))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	r.Use(prom.GinHandleMiddleware())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	tokensRepo := postgres.NewAccessTokensRepo(pool, prom)

	// the redis resolve cache is optional
	var rc auth.ResolveCache
	if tc != nil {
		rc = tc
	}

	registry := auth.NewRegistry(tokensRepo, rc, cfg.TokenSecret)
	views := cache.New(30 * time.Second)
	accounts := service.NewAccounts(usersRepo, registry, views)

	accountsHandler := handlers.NewAccountsHandler(accounts, prom, cfg.ExposeStoreErrors)
	authMw := middlewares.NewAuthMiddleware(registry)

	r.POST("/register", accountsHandler.Register)
	r.POST("/login", accountsHandler.Login)

	// Protected routes
	protected := r.Group("/", authMw.RequireAuth())
	protected.GET("/user/show", accountsHandler.Show)
	protected.POST("/user/update", accountsHandler.Update)
	protected.POST("/user/change_password", accountsHandler.ChangePassword)
	protected.POST("/logout", accountsHandler.Logout)

	return r
}
