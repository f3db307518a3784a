package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/model"
)

type withdrawalEnv struct {
	db      *memDB
	gw      *fakeGateway
	wallets *WalletService
	svc     *WithdrawalService
	wallet  *model.Wallet
	bank    *model.BankAccount
}

func newWithdrawalEnv(t *testing.T, balance int64) *withdrawalEnv {
	t.Helper()

	db := newMemDB()
	gw := newFakeGateway()
	bus := eventbus.NewBus(zap.NewNop())
	wallets := NewWalletService(&memWallets{db}, bus, zap.NewNop())

	retry := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond}
	// порог автоодобрения ниже сумм в тестах, заявки требуют Approve
	svc := NewWithdrawalService(&memWithdrawals{db}, wallets, gw, retry, decimal.NewFromInt(1000), bus, zap.NewNop())

	wallet, err := wallets.GetOrCreate(context.Background(), model.WorkspaceOwner(uuid.New()), "NGN")
	require.NoError(t, err)
	if balance > 0 {
		_, err = wallets.Credit(context.Background(), wallet.ID, decimal.NewFromInt(balance),
			model.CategoryBookingEarning, "ERN-seed", "seed", LedgerLink{})
		require.NoError(t, err)
	}

	bank := &model.BankAccount{
		ID:            uuid.New(),
		Owner:         wallet.Owner,
		AccountNumber: "0123456789",
		AccountName:   "Acme Workspaces",
		BankName:      "Test Bank",
		BankCode:      "058",
		IsVerified:    true,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	db.banks[bank.ID] = bank

	return &withdrawalEnv{db: db, gw: gw, wallets: wallets, svc: svc, wallet: wallet, bank: bank}
}

func TestWithdrawalFee(t *testing.T) {
	// ниже порога действует минимум
	require.True(t, WithdrawalFee(decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(100)))
	require.True(t, WithdrawalFee(decimal.NewFromInt(5000)).Equal(decimal.NewFromInt(100)))
	// выше порога - процент
	require.True(t, WithdrawalFee(decimal.NewFromInt(10000)).Equal(decimal.NewFromInt(200)))
}

func TestRequestValidatesWalletAndAmount(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()
	user := uuid.New()

	w, err := env.svc.Request(ctx, user, env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusPending, w.Status)
	require.True(t, w.Fee.Equal(decimal.NewFromInt(100)))
	require.True(t, w.NetAmount.Equal(decimal.NewFromInt(4900)))

	_, err = env.svc.Request(ctx, user, env.wallet.ID, env.bank.ID, decimal.NewFromInt(20000))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = env.svc.Request(ctx, user, env.wallet.ID, env.bank.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// сумма не покрывает комиссию
	_, err = env.svc.Request(ctx, user, env.wallet.ID, env.bank.ID, decimal.NewFromInt(50))
	require.ErrorIs(t, err, ErrInvalidAmount)

	env.bank.IsVerified = false
	_, err = env.svc.Request(ctx, user, env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.ErrorIs(t, err, ErrGatewayRejected)
}

func TestWithdrawalLifecycleDebitsOnce(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()

	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)

	// Process до одобрения не проходит
	require.Error(t, env.svc.Process(ctx, w.ID))

	require.NoError(t, env.svc.Approve(ctx, w.ID))
	require.NoError(t, env.svc.Process(ctx, w.ID))

	stored := env.db.withdrawals[w.ID]
	require.Equal(t, model.WithdrawalStatusProcessing, stored.Status)
	require.NotNil(t, stored.GatewayRef)

	// кошелёк ещё не тронут
	got, err := env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(10000)))

	require.NoError(t, env.svc.Complete(ctx, w.ID))
	got, err = env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(5000)))

	// повторное подтверждение не списывает второй раз
	require.NoError(t, env.svc.Complete(ctx, w.ID))
	got, err = env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(5000)))
	require.True(t, got.TotalWithdrawn.Equal(decimal.NewFromInt(5000)))
}

func TestSmallWithdrawalAutoApproved(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()

	// сумма не выше порога, ручное одобрение не требуется
	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(900))
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusApproved, w.Status)
	require.NotNil(t, env.db.withdrawals[w.ID].ApprovedAt)

	require.NoError(t, env.svc.Process(ctx, w.ID))
	require.Equal(t, model.WithdrawalStatusProcessing, env.db.withdrawals[w.ID].Status)
}

func TestCompleteWithoutFundsKeepsProcessing(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()

	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.NoError(t, env.svc.Approve(ctx, w.ID))
	require.NoError(t, env.svc.Process(ctx, w.ID))

	// кошелёк опустошили, пока шлюз проводил выплату
	_, err = env.wallets.Debit(ctx, env.wallet.ID, decimal.NewFromInt(9500),
		model.CategoryBookingPayment, "WPY-drain", "drain", LedgerLink{})
	require.NoError(t, err)

	// списание не прошло, заявка не финализируется
	err = env.svc.Complete(ctx, w.ID)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, model.WithdrawalStatusProcessing, env.db.withdrawals[w.ID].Status)

	// средства вернулись, повтор подтверждения списывает ровно один раз
	_, err = env.wallets.Credit(ctx, env.wallet.ID, decimal.NewFromInt(9500),
		model.CategoryDeposit, "DEP-refill", "refill", LedgerLink{})
	require.NoError(t, err)

	require.NoError(t, env.svc.Complete(ctx, w.ID))
	require.Equal(t, model.WithdrawalStatusCompleted, env.db.withdrawals[w.ID].Status)

	got, err := env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(5000)))

	require.NoError(t, env.svc.Complete(ctx, w.ID))
	got, err = env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()
	env.gw.transientLeft = 2

	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.NoError(t, env.svc.Approve(ctx, w.ID))
	require.NoError(t, env.svc.Process(ctx, w.ID))

	require.Equal(t, 3, env.gw.transferCalls)
	require.Equal(t, 2, env.db.withdrawals[w.ID].RetryCount)
	require.Equal(t, model.WithdrawalStatusProcessing, env.db.withdrawals[w.ID].Status)
}

func TestProcessFailsOnRejectionWithoutDebit(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()
	env.gw.rejectTransfer = true

	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.NoError(t, env.svc.Approve(ctx, w.ID))

	err = env.svc.Process(ctx, w.ID)
	require.Error(t, err)
	require.Equal(t, 1, env.gw.transferCalls)

	stored := env.db.withdrawals[w.ID]
	require.Equal(t, model.WithdrawalStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)

	got, err := env.wallets.Balance(ctx, env.wallet.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(10000)))
}

func TestRecipientRefIsCached(t *testing.T) {
	env := newWithdrawalEnv(t, 20000)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
		require.NoError(t, err)
		require.NoError(t, env.svc.Approve(ctx, w.ID))
		require.NoError(t, env.svc.Process(ctx, w.ID))
		require.NoError(t, env.svc.Complete(ctx, w.ID))
	}

	require.Equal(t, 1, env.gw.recipientCalls)
	require.NotNil(t, env.db.banks[env.bank.ID].RecipientRef)
}

func TestCancelOnlyBeforeProcessing(t *testing.T) {
	env := newWithdrawalEnv(t, 10000)
	ctx := context.Background()

	w, err := env.svc.Request(ctx, uuid.New(), env.wallet.ID, env.bank.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.NoError(t, env.svc.Cancel(ctx, w.ID))
	require.Equal(t, model.WithdrawalStatusCancelled, env.db.withdrawals[w.ID].Status)

	// уже отменённую не процессим
	require.Error(t, env.svc.Process(ctx, w.ID))
}
