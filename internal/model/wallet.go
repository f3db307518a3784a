package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnerKind вид владельца кошелька
type OwnerKind string

const (
	OwnerUser      OwnerKind = "user"
	OwnerWorkspace OwnerKind = "workspace"
)

// Owner тегированный владелец кошелька. Разрешается один раз на границе,
// дальше по коду никакого structural-inspection.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func UserOwner(id uuid.UUID) Owner      { return Owner{Kind: OwnerUser, ID: id} }
func WorkspaceOwner(id uuid.UUID) Owner { return Owner{Kind: OwnerWorkspace, ID: id} }

// Wallet кошелёк пользователя или workspace (earnings)
type Wallet struct {
	ID       uuid.UUID       `json:"id"`
	Owner    Owner           `json:"owner"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	IsActive bool            `json:"is_active"`
	IsLocked bool            `json:"is_locked"`

	// Lifetime-счётчики, ведутся только для workspace-кошельков
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanDebit проверяет возможность списания
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.IsActive && !w.IsLocked && w.Balance.GreaterThanOrEqual(amount)
}
