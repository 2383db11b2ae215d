package api

import (
	"database/sql"
	"net/http"

	"github.com/vinilomarket/vinilo/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db}
	ordersHandler := &OrdersHandler{DB: db}
	tradesHandler := &TradesHandler{DB: db}
	notificationsHandler := &NotificationsHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public: login and self-service signup.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Catalog: read (everyone), write (admin).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireAdmin(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("POST /api/items/resolve", authMW(http.HandlerFunc(itemsHandler.Resolve)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireAdmin(http.HandlerFunc(itemsHandler.Update))))

	// Orders: customers on their own, admin everywhere.
	mux.Handle("POST /api/orders", authMW(http.HandlerFunc(ordersHandler.Create)))
	mux.Handle("GET /api/orders", authMW(http.HandlerFunc(ordersHandler.List)))
	mux.Handle("GET /api/orders/{id}", authMW(http.HandlerFunc(ordersHandler.Get)))
	mux.Handle("POST /api/orders/{id}/quote", authMW(requireAdmin(http.HandlerFunc(ordersHandler.Quote))))
	mux.Handle("POST /api/orders/{id}/counter", authMW(http.HandlerFunc(ordersHandler.Counter)))
	mux.Handle("POST /api/orders/{id}/accept", authMW(http.HandlerFunc(ordersHandler.Accept)))
	mux.Handle("POST /api/orders/{id}/cancel", authMW(http.HandlerFunc(ordersHandler.Cancel)))

	// Trades.
	mux.Handle("POST /api/trades", authMW(http.HandlerFunc(tradesHandler.Create)))
	mux.Handle("GET /api/trades", authMW(http.HandlerFunc(tradesHandler.List)))
	mux.Handle("GET /api/trades/{id}", authMW(http.HandlerFunc(tradesHandler.Get)))
	mux.Handle("POST /api/trades/{id}/counter", authMW(http.HandlerFunc(tradesHandler.Counter)))
	mux.Handle("POST /api/trades/{id}/accept", authMW(http.HandlerFunc(tradesHandler.Accept)))
	mux.Handle("POST /api/trades/{id}/decline", authMW(http.HandlerFunc(tradesHandler.Decline)))

	// Notifications.
	mux.Handle("GET /api/notifications", authMW(http.HandlerFunc(notificationsHandler.List)))
	mux.Handle("PUT /api/notifications/{id}/read", authMW(http.HandlerFunc(notificationsHandler.MarkRead)))

	return mux
}
