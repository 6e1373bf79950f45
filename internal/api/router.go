package api

import (
	"database/sql"
	"net/http"

	"github.com/save4223/save4223server/internal/access"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/obs"
	"github.com/save4223/save4223server/internal/reconcile"
)

// Config holds the dependencies of the API router.
type Config struct {
	DB         *sql.DB
	JWTSecret  string
	EdgeSecret string
	Access     *access.Engine
	Reconciler *reconcile.Reconciler

	// EdgeLimiter throttles edge routes per client IP. Nil disables it.
	EdgeLimiter *RateLimiter
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	edgeHandler := &EdgeHandler{DB: cfg.DB, Access: cfg.Access, Reconciler: cfg.Reconciler}
	userHandler := &UserHandler{DB: cfg.DB}
	usersHandler := &UsersHandler{DB: cfg.DB}
	itemsHandler := &ItemsHandler{DB: cfg.DB}
	permissionsHandler := &PermissionsHandler{DB: cfg.DB}
	sessionsHandler := &SessionsHandler{DB: cfg.DB}

	edgeAuth := EdgeAuth(cfg.EdgeSecret)
	edge := func(h http.HandlerFunc) http.Handler {
		wrapped := edgeAuth(h)
		if cfg.EdgeLimiter != nil {
			wrapped = cfg.EdgeLimiter.Middleware(wrapped)
		}
		return wrapped
	}
	authMW := AuthMiddleware(cfg.JWTSecret)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Ops.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", obs.Handler())

	// Edge devices.
	mux.Handle("POST /api/edge/authorize", edge(edgeHandler.Authorize))
	mux.Handle("GET /api/edge/local-sync", edge(edgeHandler.LocalSync))
	mux.Handle("POST /api/edge/sync-session", edge(edgeHandler.SyncSession))
	mux.Handle("POST /api/edge/pair-card", edge(edgeHandler.PairCard))

	// Signed-in user.
	mux.Handle("POST /api/user/pairing-token", authMW(http.HandlerFunc(userHandler.PairingToken)))
	mux.Handle("GET /api/user/items", authMW(http.HandlerFunc(userHandler.Items)))
	mux.Handle("GET /api/user/cards", authMW(http.HandlerFunc(userHandler.Cards)))
	mux.Handle("DELETE /api/user/cards/{id}", authMW(http.HandlerFunc(userHandler.DeactivateCard)))
	mux.Handle("GET /api/user/profile", authMW(http.HandlerFunc(userHandler.Profile)))
	mux.Handle("PATCH /api/user/profile", authMW(http.HandlerFunc(userHandler.UpdateProfile)))

	// Users (admin only).
	mux.Handle("GET /api/admin/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/admin/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/admin/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items and permissions (manager+).
	mux.Handle("PUT /api/admin/items/{id}/status", authMW(requireManager(http.HandlerFunc(itemsHandler.SetStatus))))
	mux.Handle("GET /api/admin/items/overdue", authMW(requireManager(http.HandlerFunc(itemsHandler.Overdue))))
	mux.Handle("POST /api/admin/permissions", authMW(requireManager(http.HandlerFunc(permissionsHandler.Create))))
	mux.Handle("PUT /api/admin/permissions/{id}", authMW(requireManager(http.HandlerFunc(permissionsHandler.Update))))

	// Sessions (admin only).
	mux.Handle("GET /api/admin/sessions/{id}", authMW(requireAdmin(http.HandlerFunc(sessionsHandler.Get))))
	mux.Handle("POST /api/admin/sessions/{id}/force-close", authMW(requireAdmin(http.HandlerFunc(sessionsHandler.ForceClose))))
	mux.Handle("GET /api/admin/sessions/{id}/evidence", authMW(requireAdmin(http.HandlerFunc(sessionsHandler.Evidence))))

	return RequestIDMiddleware(LoggingMiddleware(obs.Instrument(mux)))
}
