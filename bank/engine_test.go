package bank

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashasviy/bank-ledger-api/db"
	"github.com/yashasviy/bank-ledger-api/lock"
	"github.com/yashasviy/bank-ledger-api/metrics"
	"github.com/yashasviy/bank-ledger-api/models"
	"github.com/yashasviy/bank-ledger-api/notify"
)

// ---- test doubles ----

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []notify.Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return c.err
}

func (c *recordingChannel) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Message(nil), c.sent...)
}

type countingStore struct {
	*db.MemoryStore
	saveErr error

	mu    sync.Mutex
	saves int
}

func (s *countingStore) Save(ctx context.Context, a *models.Account) (*models.Account, error) {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	return s.MemoryStore.Save(ctx, a)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fixture struct {
	engine *Engine
	store  *countingStore
	email  *recordingChannel
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: &countingStore{MemoryStore: db.NewMemoryStore()},
		email: &recordingChannel{name: notify.EmailChannelName},
	}
	f.engine = NewEngine(f.store, notify.NewDispatcher(f.email), opts...)
	return f
}

// seed stores an account with the given balance without going through the engine.
func (f *fixture) seed(t *testing.T, lastName, balance string) {
	t.Helper()
	a := models.NewAccount("Ben", lastName, notify.EmailChannelName)
	a.Balance = decimal.RequireFromString(balance)
	_, err := f.store.MemoryStore.Save(context.Background(), a)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, lastName string) decimal.Decimal {
	t.Helper()
	a, err := f.store.FindByLastName(context.Background(), lastName)
	require.NoError(t, err)
	return a.Balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// ---- account lifecycle ----

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)

	view, err := f.engine.CreateAccount(context.Background(), "Ben", "Scott")

	require.NoError(t, err)
	assert.Equal(t, "Ben", view.FirstName)
	assert.Equal(t, "Scott", view.LastName)
	assert.True(t, view.Balance.IsZero())
	assert.Equal(t, "email", view.NotificationPreference)
	assert.Equal(t, 1, f.store.saveCount())

	assert.Equal(t, []notify.Message{{
		From:    "bank",
		To:      "Scott",
		Subject: "Account Created",
		Body:    "Welcome aboard!",
	}}, f.email.messages())
}

func TestCreateAccountDuplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateAccount(context.Background(), "Ben", "Scott")
	require.NoError(t, err)

	_, err = f.engine.CreateAccount(context.Background(), "Other", "Scott")

	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, 1, f.store.saveCount(), "second attempt must not write")
	assert.Len(t, f.email.messages(), 1, "second attempt must not notify")
}

func TestCreateAccountNotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.email.err = errors.New("smtp down")

	view, err := f.engine.CreateAccount(context.Background(), "Ben", "Scott")

	require.NoError(t, err)
	assert.Equal(t, "Scott", view.LastName)
	_, err = f.engine.GetAccount(context.Background(), "Scott")
	assert.NoError(t, err)
}

func TestCreateAccountSaveFailure(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("disk full")

	_, err := f.engine.CreateAccount(context.Background(), "Ben", "Scott")

	assert.Error(t, err)
	assert.Empty(t, f.email.messages())
}

func TestCreateAccountTakesDefaultChannelAsPreference(t *testing.T) {
	stream := &recordingChannel{name: "stream"}
	email := &recordingChannel{name: "email"}
	store := &countingStore{MemoryStore: db.NewMemoryStore()}
	e := NewEngine(store, notify.NewDispatcher(stream, email))

	view, err := e.CreateAccount(context.Background(), "Ben", "Scott")

	require.NoError(t, err)
	assert.Equal(t, "stream", view.NotificationPreference)
	assert.Len(t, stream.messages(), 1)
	assert.Empty(t, email.messages())
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "12.5")

	view, err := f.engine.GetAccount(context.Background(), "Scott")
	require.NoError(t, err)
	assertDecimal(t, "12.5", view.Balance)

	_, err = f.engine.GetAccount(context.Background(), "Nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

// ---- deposit ----

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "0")

	view, err := f.engine.Deposit(context.Background(), "Scott", dec("14.53"))

	require.NoError(t, err)
	assertDecimal(t, "14.53", view.Balance)
	assert.Equal(t, "Ben", view.FirstName)
	assert.Equal(t, 1, f.store.saveCount())
	assert.Empty(t, f.email.messages(), "deposit never notifies")
}

func TestDepositNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Deposit(context.Background(), "Nobody", dec("1"))

	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, 0, f.store.saveCount())
}

func TestDepositSaveFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "5")
	f.store.saveErr = errors.New("disk full")

	_, err := f.engine.Deposit(context.Background(), "Scott", dec("1"))

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
	assertDecimal(t, "5", f.balance(t, "Scott"))
}

// ---- withdraw ----

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "10")

	view, err := f.engine.Withdraw(context.Background(), "Scott", dec("1.53"))

	require.NoError(t, err)
	assertDecimal(t, "8.47", view.Balance)
	assert.Equal(t, 1, f.store.saveCount())
	assert.Empty(t, f.email.messages())
}

func TestWithdrawWholeBalance(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "10")

	view, err := f.engine.Withdraw(context.Background(), "Scott", dec("10"))

	require.NoError(t, err)
	assert.True(t, view.Balance.IsZero())
	assert.Empty(t, f.email.messages())
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "10")

	_, err := f.engine.Withdraw(context.Background(), "Scott", dec("10.01"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 0, f.store.saveCount(), "no write on insufficient funds")
	assertDecimal(t, "10", f.balance(t, "Scott"))
	assert.Equal(t, []notify.Message{{
		From:    "Bank",
		To:      "Scott",
		Subject: "Insufficient funds",
		Body:    "Unable to withdraw 10.01. Your current balance is 10",
	}}, f.email.messages())
}

func TestWithdrawInsufficientFundsKeepsScale(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "10.00")

	_, err := f.engine.Withdraw(context.Background(), "Scott", dec("15.00"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.Len(t, f.email.messages(), 1)
	assert.Equal(t, "Unable to withdraw 15.00. Your current balance is 10.00", f.email.messages()[0].Body)
}

func TestWithdrawInsufficientFundsFallsBackToDefaultChannel(t *testing.T) {
	f := newFixture(t)
	a := models.NewAccount("Ben", "Scott", "sms")
	_, err := f.store.MemoryStore.Save(context.Background(), a)
	require.NoError(t, err)

	_, err = f.engine.Withdraw(context.Background(), "Scott", dec("1"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, f.email.messages(), 1)
}

func TestWithdrawNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Withdraw(context.Background(), "Nobody", dec("1"))

	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, f.email.messages())
}

func TestBalanceIsSumOfCommittedOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.CreateAccount(ctx, "Ben", "Scott")
	require.NoError(t, err)

	steps := []struct {
		deposit bool
		amount  string
	}{
		{true, "100.25"}, {false, "0.25"}, {false, "200"}, {true, "0.01"},
		{false, "100.01"}, {false, "0.01"}, {true, "3.3"}, {false, "3.29"},
	}

	want := decimal.Zero
	for _, s := range steps {
		amount := dec(s.amount)
		if s.deposit {
			_, err = f.engine.Deposit(ctx, "Scott", amount)
			require.NoError(t, err)
			want = want.Add(amount)
		} else {
			_, err = f.engine.Withdraw(ctx, "Scott", amount)
			if amount.GreaterThan(want) {
				require.ErrorIs(t, err, ErrInsufficientFunds)
			} else {
				require.NoError(t, err)
				want = want.Sub(amount)
			}
		}
		got := f.balance(t, "Scott")
		assert.False(t, got.IsNegative(), "balance went negative: %s", got)
		assertDecimal(t, want.String(), got)
	}
}

// ---- transfer ----

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "X", "20")
	f.seed(t, "Y", "5")

	view, err := f.engine.Transfer(context.Background(), "X", "Y", dec("5"))

	require.NoError(t, err)
	assert.Equal(t, "X", view.LastName)
	assertDecimal(t, "15", view.Balance)
	assertDecimal(t, "15", f.balance(t, "X"))
	assertDecimal(t, "10", f.balance(t, "Y"))
	assert.Empty(t, f.email.messages())
}

// The credit to the destination is committed before the debit is attempted and
// is not undone when the debit fails.
func TestTransferInsufficientFundsKeepsDestinationCredit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "X", "10")
	f.seed(t, "Y", "0")

	_, err := f.engine.Transfer(context.Background(), "X", "Y", dec("15"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assertDecimal(t, "15", f.balance(t, "Y"))
	assertDecimal(t, "10", f.balance(t, "X"))
	assert.Equal(t, []notify.Message{{
		From:    "Bank",
		To:      "X",
		Subject: "Insufficient funds",
		Body:    "Unable to withdraw 15. Your current balance is 10",
	}}, f.email.messages())
}

func TestTransferUnknownAccountMutatesNothing(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination string
	}{
		{"unknown source", "Nobody", "Y"},
		{"unknown destination", "X", "Nobody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "X", "10")
			f.seed(t, "Y", "0")

			_, err := f.engine.Transfer(context.Background(), tt.source, tt.destination, dec("5"))

			assert.ErrorIs(t, err, ErrAccountNotFound)
			assert.Equal(t, 0, f.store.saveCount())
			assertDecimal(t, "10", f.balance(t, "X"))
			assertDecimal(t, "0", f.balance(t, "Y"))
		})
	}
}

func TestTransferToSelf(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "X", "10")

	view, err := f.engine.Transfer(context.Background(), "X", "X", dec("4"))

	require.NoError(t, err)
	assertDecimal(t, "10", view.Balance)
}

// ---- concurrency ----

func TestConcurrentDepositsWithKeyedMutex(t *testing.T) {
	f := newFixture(t, WithLocker(lock.NewKeyedMutex()))
	f.seed(t, "Scott", "0")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Deposit(context.Background(), "Scott", dec("1.10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertDecimal(t, "55", f.balance(t, "Scott"))
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "10")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Withdraw(context.Background(), "Scott", dec("1"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, f.balance(t, "Scott").IsZero())
	assert.Len(t, f.email.messages(), 20)
}

func TestLockWaitHonoursContext(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Scott", "0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Deposit(ctx, "Scott", dec("1"))

	// Whether the cancelled context wins the race against a free lock is up to the
	// scheduler; either outcome must leave a consistent balance.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		assertDecimal(t, "0", f.balance(t, "Scott"))
	} else {
		assertDecimal(t, "1", f.balance(t, "Scott"))
	}
}

// ---- metrics ----

func TestEngineRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(metrics.NewRecorder(reg)))
	ctx := context.Background()

	_, _ = f.engine.CreateAccount(ctx, "Ben", "Scott")
	_, _ = f.engine.CreateAccount(ctx, "Ben", "Scott")
	_, _ = f.engine.Deposit(ctx, "Scott", dec("1"))
	_, _ = f.engine.Withdraw(ctx, "Scott", dec("2"))
	_, _ = f.engine.Deposit(ctx, "Nobody", dec("1"))

	count, err := testutil.GatherAndCount(reg, "ledger_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 5, count, "create/success, create/duplicate, deposit/success, withdraw/insufficient, deposit/not_found")

	notifications, err := testutil.GatherAndCount(reg, "ledger_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, notifications)
}
