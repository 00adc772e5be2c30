// Package bank is the account transaction engine: account creation, deposits,
// withdrawals and transfers, with the notifications that go with them.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yashasviy/bank-ledger-api/db"
	"github.com/yashasviy/bank-ledger-api/lock"
	"github.com/yashasviy/bank-ledger-api/metrics"
	"github.com/yashasviy/bank-ledger-api/models"
	"github.com/yashasviy/bank-ledger-api/notify"
)

var (
	// ErrAccountNotFound means the identifier does not resolve to a stored account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount means an account with the same last name already exists.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrInsufficientFunds means a withdrawal asked for more than the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Notification fields.
const (
	createdFrom    = "bank"
	createdSubject = "Account Created"
	createdBody    = "Welcome aboard!"

	insufficientFrom    = "Bank"
	insufficientSubject = "Insufficient funds"
	insufficientBody    = "Unable to withdraw %s. Your current balance is %s"
)

// Notifier resolves notification channels. Resolve must always return a channel.
type Notifier interface {
	Resolve(preference string) notify.Channel
	Default() notify.Channel
}

// Engine applies balance mutations against an AccountStore.
type Engine struct {
	store    db.AccountStore
	notifier Notifier
	locker   lock.Locker
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker sets how read-modify-write on one account is serialized.
// The default is an in-process lock.KeyedMutex.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithLogger sets the engine logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the recorder for operation and notification counters.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine returns an engine over store that notifies through notifier.
func NewEngine(store db.AccountStore, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		locker:   lock.NewKeyedMutex(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func lockKey(lastName string) string {
	return "account:" + lastName
}

// CreateAccount opens an account with a zero balance and welcomes the holder.
func (e *Engine) CreateAccount(ctx context.Context, firstName, lastName string) (*models.AccountView, error) {
	var saved *models.Account
	err := e.locker.WithLock(ctx, lockKey(lastName), func(ctx context.Context) error {
		_, err := e.store.FindByLastName(ctx, lastName)
		if err == nil {
			return ErrDuplicateAccount
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("failed to check account %s: %w", lastName, err)
		}

		account := models.NewAccount(firstName, lastName, e.notifier.Default().Name())
		saved, err = e.store.Save(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to save account %s: %w", lastName, err)
		}
		return nil
	})
	e.record("create", err)
	if err != nil {
		return nil, err
	}

	e.logger.Info("account created", zap.String("lastName", saved.LastName))
	e.send(ctx, saved.NotificationPreference, notify.Message{
		From:    createdFrom,
		To:      saved.LastName,
		Subject: createdSubject,
		Body:    createdBody,
	})
	return saved.View(), nil
}

// GetAccount returns the current view of an account.
func (e *Engine) GetAccount(ctx context.Context, lastName string) (*models.AccountView, error) {
	account, err := e.load(ctx, lastName)
	if err != nil {
		return nil, err
	}
	return account.View(), nil
}

// Deposit adds amount to the account's balance. amount is applied as given.
func (e *Engine) Deposit(ctx context.Context, lastName string, amount decimal.Decimal) (*models.AccountView, error) {
	var saved *models.Account
	err := e.locker.WithLock(ctx, lockKey(lastName), func(ctx context.Context) error {
		account, err := e.load(ctx, lastName)
		if err != nil {
			return err
		}
		account.Deposit(amount)
		saved, err = e.save(ctx, account)
		return err
	})
	e.record("deposit", err)
	if err != nil {
		return nil, err
	}
	return saved.View(), nil
}

// Withdraw takes amount from the account. When the balance is too low the
// holder is notified, nothing is written and ErrInsufficientFunds is returned.
func (e *Engine) Withdraw(ctx context.Context, lastName string, amount decimal.Decimal) (*models.AccountView, error) {
	var saved *models.Account
	err := e.locker.WithLock(ctx, lockKey(lastName), func(ctx context.Context) error {
		account, err := e.load(ctx, lastName)
		if err != nil {
			return err
		}

		if err := account.Withdraw(amount); err != nil {
			e.send(ctx, account.NotificationPreference, notify.Message{
				From:    insufficientFrom,
				To:      account.LastName,
				Subject: insufficientSubject,
				Body:    fmt.Sprintf(insufficientBody, plain(amount), plain(account.Balance)),
			})
			return ErrInsufficientFunds
		}

		saved, err = e.save(ctx, account)
		return err
	})
	e.record("withdraw", err)
	if err != nil {
		return nil, err
	}
	return saved.View(), nil
}

// Transfer credits destination and then debits source, returning the source's view.
//
// The two steps commit independently. If the debit fails the credit stays in
// place; callers see ErrInsufficientFunds with the destination already paid.
func (e *Engine) Transfer(ctx context.Context, source, destination string, amount decimal.Decimal) (*models.AccountView, error) {
	view, err := e.transfer(ctx, source, destination, amount)
	e.record("transfer", err)
	return view, err
}

func (e *Engine) transfer(ctx context.Context, source, destination string, amount decimal.Decimal) (*models.AccountView, error) {
	if _, err := e.load(ctx, source); err != nil {
		return nil, err
	}
	if _, err := e.load(ctx, destination); err != nil {
		return nil, err
	}

	if _, err := e.Deposit(ctx, destination, amount); err != nil {
		return nil, err
	}

	view, err := e.Withdraw(ctx, source, amount)
	if err != nil {
		e.logger.Warn("transfer debit failed after destination was credited",
			zap.String("source", source),
			zap.String("destination", destination),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return view, nil
}

// plain formats d with the scale it carries, so 15.00 stays "15.00".
func plain(d decimal.Decimal) string {
	if d.Exponent() >= 0 {
		return d.String()
	}
	return d.StringFixed(-d.Exponent())
}

func (e *Engine) load(ctx context.Context, lastName string) (*models.Account, error) {
	account, err := e.store.FindByLastName(ctx, lastName)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", lastName, err)
	}
	return account, nil
}

func (e *Engine) save(ctx context.Context, account *models.Account) (*models.Account, error) {
	saved, err := e.store.Save(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to save account %s: %w", account.LastName, err)
	}
	return saved, nil
}

// send is best effort: a failed notification is logged and never fails the operation.
func (e *Engine) send(ctx context.Context, preference string, msg notify.Message) {
	channel := e.notifier.Resolve(preference)
	err := channel.Send(ctx, msg)
	e.metrics.Notification(channel.Name(), msg.Subject, err)
	if err != nil {
		e.logger.Warn("notification failed",
			zap.String("channel", channel.Name()),
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

func (e *Engine) record(operation string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, ErrDuplicateAccount):
		outcome = metrics.OutcomeDuplicate
	case errors.Is(err, ErrInsufficientFunds):
		outcome = metrics.OutcomeInsufficient
	default:
		outcome = metrics.OutcomeError
		e.logger.Error("account operation failed", zap.String("operation", operation), zap.Error(err))
	}
	e.metrics.Operation(operation, outcome)
}
