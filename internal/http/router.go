package http

import (
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/geocoder89/securedata/internal/auth"
	"github.com/geocoder89/securedata/internal/config"
	"github.com/geocoder89/securedata/internal/http/handlers"
	"github.com/geocoder89/securedata/internal/http/middlewares"
	"github.com/geocoder89/securedata/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the collaborators the router wires into handlers. Auth, Limiter
// and Prom are optional.
type Deps struct {
	Config  config.Config
	Users   handlers.UserVault
	Mail    handlers.SignedMailer
	Auth    middlewares.TokenVerifier
	Limiter middlewares.WindowCounter
	Prom    *observability.Prom
	Checks  map[string]handlers.PingFunc
}

func NewRouter(log *slog.Logger, deps Deps) *gin.Engine {
	cfg := deps.Config

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(otelgin.Middleware("securedata"))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	if cfg.MaxBodyBytes > 0 {
		r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	}
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	counter := deps.Limiter
	if counter == nil {
		counter = middlewares.NewMemoryCounter()
	}

	// decrypt is bcrypt-bound and send-email reaches a real inbox
	sendLimiter := middlewares.NewRateLimiter(counter, "send-email", cfg.RateLimitPerMinute, time.Minute, log)
	decryptLimiter := middlewares.NewRateLimiter(counter, "decrypt", cfg.RateLimitPerMinute, time.Minute, log)

	usersHandler := handlers.NewUsersHandler(deps.Users, log, 10*time.Second)
	mailHandler := handlers.NewMailHandler(deps.Mail, mailHandlerTimeout(cfg))

	r.POST("/add-user", usersHandler.AddUser)
	r.POST("/decrypt", decryptLimiter.RateLimiterMiddleware(middlewares.KeyByIP), usersHandler.Decrypt)
	r.POST("/send-email", sendLimiter.RateLimiterMiddleware(middlewares.KeyByIP), mailHandler.SendEmail)
	r.POST("/verify-signature", mailHandler.VerifySignature)

	// admin listings
	if deps.Auth != nil {
		authMW := middlewares.NewAuthMiddleware(deps.Auth)

		admin := r.Group("/")
		admin.Use(authMW.RequireAuth(), authMW.RequireRole(auth.RoleAdmin))
		{
			admin.GET("/users", usersHandler.ListUsers)
			admin.GET("/emails", mailHandler.ListEmails)
		}
	}

	if cfg.StaticDir != "" {
		r.NoRoute(staticFiles(cfg.StaticDir))
	}

	return r
}

// the protected mailer may retry, so leave room for a few attempts
func mailHandlerTimeout(cfg config.Config) time.Duration {
	return 3*cfg.MailTimeout() + 5*time.Second
}

// staticFiles serves the bundled frontend. Paths that don't name a file get
// index.html so client-side routes still load.
func staticFiles(dir string) gin.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)
	index := filepath.Join(dir, "index.html")

	return func(ctx *gin.Context) {
		method := ctx.Request.Method
		if method != http.MethodGet && method != http.MethodHead {
			handlers.RespondNotFound(ctx, "Route not found")
			return
		}

		name := path.Clean("/" + ctx.Request.URL.Path)

		if f, err := root.Open(name); err == nil {
			st, statErr := f.Stat()
			_ = f.Close()

			if statErr == nil && !st.IsDir() {
				files.ServeHTTP(ctx.Writer, ctx.Request)
				return
			}
		}

		ctx.File(index)
	}
}
