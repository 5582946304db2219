package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/GlebRadaev/walletled/docs"
	adminhandlers "github.com/GlebRadaev/walletled/internal/handlers/admin"
	authhandlers "github.com/GlebRadaev/walletled/internal/handlers/auth"
	escrowhandlers "github.com/GlebRadaev/walletled/internal/handlers/escrow"
	wallethandlers "github.com/GlebRadaev/walletled/internal/handlers/wallet"
	"github.com/GlebRadaev/walletled/internal/service"
	"github.com/GlebRadaev/walletled/pkg/auth"
)

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
}

type WalletHandler interface {
	GetWallet(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
	Transfer(w http.ResponseWriter, r *http.Request)
}

type EscrowHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Fund(w http.ResponseWriter, r *http.Request)
	Release(w http.ResponseWriter, r *http.Request)
	Refund(w http.ResponseWriter, r *http.Request)
	Dispute(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	Adjust(w http.ResponseWriter, r *http.Request)
	Review(w http.ResponseWriter, r *http.Request)
	Reconcile(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	AuthHandler   AuthHandler
	WalletHandler WalletHandler
	EscrowHandler EscrowHandler
	AdminHandler  AdminHandler
}

func New(s *service.Services) *Handlers {
	return &Handlers{
		AuthHandler:   authhandlers.New(s.AuthService),
		WalletHandler: wallethandlers.New(s.WalletService),
		EscrowHandler: escrowhandlers.New(s.EscrowService),
		AdminHandler:  adminhandlers.New(s.AdminService),
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))
	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.AuthHandler.Register)
		r.Post("/login", h.AuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware)
			r.Get("/wallet", h.WalletHandler.GetWallet)
			r.Get("/transactions", h.WalletHandler.GetTransactions)
			r.Post("/transfer", h.WalletHandler.Transfer)
		})
	})
	r.Route("/api/escrow", func(r chi.Router) {
		r.Use(auth.AuthMiddleware)
		r.Post("/", h.EscrowHandler.Create)
		r.Get("/", h.EscrowHandler.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.EscrowHandler.Get)
			r.Post("/fund", h.EscrowHandler.Fund)
			r.Post("/release", h.EscrowHandler.Release)
			r.Post("/refund", h.EscrowHandler.Refund)
			r.Post("/dispute", h.EscrowHandler.Dispute)
		})
	})
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.AuthMiddleware, auth.AdminMiddleware)
		r.Post("/adjustment", h.AdminHandler.Adjust)
		r.Post("/transactions/{id}/review", h.AdminHandler.Review)
		r.Get("/reconcile/{userID}", h.AdminHandler.Reconcile)
	})

	return r
}
