package service

import (
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletled/internal/config"
	"github.com/GlebRadaev/walletled/internal/handlers/admin"
	"github.com/GlebRadaev/walletled/internal/handlers/auth"
	"github.com/GlebRadaev/walletled/internal/handlers/wallet"
	"github.com/GlebRadaev/walletled/internal/pg"
	"github.com/GlebRadaev/walletled/internal/repo"
	"github.com/GlebRadaev/walletled/internal/service/adminservice"
	"github.com/GlebRadaev/walletled/internal/service/atomic"
	"github.com/GlebRadaev/walletled/internal/service/auditservice"
	"github.com/GlebRadaev/walletled/internal/service/authservice"
	"github.com/GlebRadaev/walletled/internal/service/escrowservice"
	"github.com/GlebRadaev/walletled/internal/service/executor"
	"github.com/GlebRadaev/walletled/internal/service/riskservice"
	"github.com/GlebRadaev/walletled/internal/service/walletservice"
	pkgauth "github.com/GlebRadaev/walletled/pkg/auth"
	"github.com/GlebRadaev/walletled/pkg/notify"
)

type Services struct {
	AuthService   auth.Service
	WalletService wallet.Service
	EscrowService *escrowservice.Service
	AdminService  admin.Service
	AuditService  *auditservice.Service
}

func New(r *repo.Repositories, txManager pg.TXManager, cfg *config.Config, notifier notify.Notifier) *Services {
	riskService := riskservice.New(r.TransactionRepo, riskservice.Baselines{
		AbsoluteAmount: decimal.RequireFromString(cfg.RiskAbsoluteAmount),
		HourlyCount:    cfg.RiskHourlyBaseline,
		DailyCount:     cfg.RiskDailyBaseline,
	})
	exec := executor.New(r.WalletRepo, r.TransactionRepo, riskService, txManager,
		decimal.RequireFromString(cfg.RiskReviewThreshold))
	coordinator := atomic.New(exec, r.RequestRepo)

	walletService := walletservice.New(r.WalletRepo, r.TransactionRepo, coordinator)
	escrowService := escrowservice.New(r.EscrowRepo, exec, coordinator, notifier, cfg.EscrowSweepInterval)
	auditService := auditservice.New(r.WalletRepo, r.TransactionRepo, r.EscrowRepo, cfg.AuditSweepInterval)
	adminService := adminservice.New(exec, auditService, notifier)
	authService := authservice.New(r.UserRepo, r.WalletRepo, txManager, &pkgauth.HashService{}, &pkgauth.JWTService{})

	return &Services{
		AuthService:   authService,
		WalletService: walletService,
		EscrowService: escrowService,
		AdminService:  adminService,
		AuditService:  auditService,
	}
}
