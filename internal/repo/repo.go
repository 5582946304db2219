package repo

import (
	"github.com/GlebRadaev/walletled/internal/pg"
	escrowrepo "github.com/GlebRadaev/walletled/internal/repo/escrow-repo"
	requestrepo "github.com/GlebRadaev/walletled/internal/repo/request-repo"
	transactionrepo "github.com/GlebRadaev/walletled/internal/repo/transaction-repo"
	userrepo "github.com/GlebRadaev/walletled/internal/repo/user-repo"
	walletrepo "github.com/GlebRadaev/walletled/internal/repo/wallet-repo"
)

type Repositories struct {
	UserRepo        *userrepo.Repository
	WalletRepo      *walletrepo.Repository
	TransactionRepo *transactionrepo.Repository
	EscrowRepo      *escrowrepo.Repository
	RequestRepo     *requestrepo.Repository
}

func New(conn pg.Database) *Repositories {
	return &Repositories{
		UserRepo:        userrepo.New(conn),
		WalletRepo:      walletrepo.New(conn),
		TransactionRepo: transactionrepo.New(conn),
		EscrowRepo:      escrowrepo.New(conn),
		RequestRepo:     requestrepo.New(conn),
	}
}
