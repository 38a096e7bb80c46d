package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"streamhub/internal/auth"
	"streamhub/internal/blob"
	"streamhub/internal/config"
	"streamhub/internal/db"
)

const jsonBodyLimit = 1 << 20

type Server struct {
	router *chi.Mux
	config *config.Config
}

func NewServer(cfg *config.Config, database *db.DB, media blob.Store) (*Server, error) {
	ips, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parsing trusted proxies: %w", err)
	}

	userRepo := db.NewUserRepository(database)
	channelRepo := db.NewChannelRepository(database)

	jwtService := auth.NewJWTService(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	sessions := auth.NewSessionService(jwtService, userRepo)
	images := imageUploader{store: media}
	cookies := credentialCookies{secure: cfg.IsProduction()}

	authHandler := NewAuthHandler(userRepo, sessions, images, cookies, cfg.Storage.UploadMaxBytes)
	userHandler := NewUserHandler(userRepo, images, cfg.Storage.UploadMaxBytes)
	channelHandler := NewChannelHandler(channelRepo)
	healthHandler := NewHealthHandler(database)

	authMiddleware := NewAuthMiddleware(jwtService, userRepo)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(ips))
	r.Use(recoverer)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		notFound(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthcheck", healthHandler.Check)

	if local, ok := media.(*blob.LocalStore); ok {
		r.Get("/media/{kind}/{name}", NewMediaHandler(local).Get)
	}

	r.Route("/users", func(r chi.Router) {
		// Multipart routes enforce their own, larger body limit.
		r.With(rateLimit(10, time.Minute, ips)).Post("/register", authHandler.Register)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Patch("/update-avatar", userHandler.UpdateAvatar)
			r.Patch("/update-cover", userHandler.UpdateCover)
		})

		r.Group(func(r chi.Router) {
			r.Use(maxBodySizeMiddleware(jsonBodyLimit))
			r.With(rateLimit(10, time.Minute, ips)).Post("/login", authHandler.Login)
			r.With(rateLimit(30, time.Minute, ips)).Post("/refresh-token", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/logout", authHandler.Logout)
				r.Get("/current-user", userHandler.CurrentUser)
				r.Get("/watch-history", channelHandler.WatchHistory)
				r.Get("/c/{username}", channelHandler.Profile)
				r.Patch("/change-password", userHandler.ChangePassword)
				r.Patch("/update-account", userHandler.UpdateAccount)
			})
		})
	})

	return &Server{
		router: r,
		config: cfg,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// corsMiddleware allows the configured origins plus loopback origins, and
// rejects any other cross-origin request outright. Requests without an Origin
// header pass through.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, ok := allowed[origin]
			if !ok && !isLoopbackOrigin(origin) {
				forbidden(w, "Origin not allowed")
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into the standard error envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic serving request",
				"panic", fmt.Sprint(rec),
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()),
			)
			internalError(w, "")
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(ips *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"remote", ips.Resolve(r),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
