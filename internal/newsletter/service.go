package newsletter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/alshekh/portfolio/internal/shared"
)

// Repository is the subscriber directory the manager works against.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	FindByEmail(ctx context.Context, email string) (*Subscriber, error)
	Insert(ctx context.Context, sub *Subscriber) error
	Update(ctx context.Context, sub *Subscriber) error
}

// Notifier is told about subscriptions that changed state.
type Notifier interface {
	SubscriptionConfirmed(ctx context.Context, email string, result Result) error
}

// ManagerConfig carries optional collaborators.
type ManagerConfig struct {
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager runs the subscribe workflow: validate, look up, then create,
// reactivate or acknowledge.
type Manager struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	inflight singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(repo Repository, cfg ManagerConfig) *Manager {
	m := &Manager{
		repo:     repo,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		validate: validator.New(),
		now:      cfg.Now,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m
}

// subscribeTimeout bounds the shared subscribe call.
const subscribeTimeout = 10 * time.Second

type subscribeInput struct {
	Email string `validate:"required,email,max=255"`
}

// Subscribe registers email for the newsletter. It returns *ValidationError
// for malformed input and *PersistenceError when the store fails or ctx ends
// first. Concurrent calls for one address share a single store round trip;
// only the caller whose call did the write sees Created or Reactivated.
func (m *Manager) Subscribe(ctx context.Context, email string) (Result, error) {
	email = NormalizeEmail(email)
	if err := m.validateEmail(email); err != nil {
		return 0, err
	}

	// The shared call outlives any single caller so one client going away
	// does not fail the others waiting on the same address.
	leader := false
	ch := m.inflight.DoChan(email, func() (any, error) {
		leader = true
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), subscribeTimeout)
		defer cancel()
		return m.subscribe(sctx, email)
	})

	select {
	case <-ctx.Done():
		return 0, &PersistenceError{Op: "transaction", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		result := res.Val.(Result)
		if !leader && result != ResultAlreadyActive {
			// Another caller performed the write.
			m.logger.Debug("newsletter subscribe coalesced", slog.String("subscriber", subscriberRef(email)))
			result = ResultAlreadyActive
		}
		return result, nil
	}
}

// NormalizeEmail trims surrounding whitespace and applies NFC normalisation.
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.TrimSpace(email))
}

func (m *Manager) validateEmail(email string) error {
	err := m.validate.Struct(subscribeInput{Email: email})
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string][]string{"email": {err.Error()}}}
	}
	fields := make(map[string][]string)
	for _, fe := range fieldErrs {
		key := strings.ToLower(fe.Field())
		fields[key] = append(fields[key], validationMessage(key, fe))
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + field + " field is required."
	case "email":
		return "The " + field + " field must be a valid email address."
	case "max":
		return "The " + field + " field must not be greater than " + fe.Param() + " characters."
	default:
		return "The " + field + " field is invalid."
	}
}

func (m *Manager) subscribe(ctx context.Context, email string) (Result, error) {
	result, err := m.upsert(ctx, email)
	if errors.Is(err, ErrDuplicateEmail) {
		// A concurrent writer inserted the row between our read and write;
		// the second pass resolves through the existing record.
		m.logger.Info("newsletter subscribe raced, retrying lookup", slog.String("subscriber", subscriberRef(email)))
		result, err = m.upsert(ctx, email)
	}
	if err != nil {
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			perr = &PersistenceError{Op: "transaction", Err: err}
		}
		m.logger.Error("newsletter subscribe failed",
			slog.String("subscriber", subscriberRef(email)),
			slog.String("op", perr.Op),
			slog.Any("error", perr.Err))
		return 0, perr
	}

	m.logger.Info("newsletter subscribe",
		slog.String("subscriber", subscriberRef(email)),
		slog.String("result", result.String()))

	if result != ResultAlreadyActive && m.notifier != nil {
		if err := m.notifier.SubscriptionConfirmed(ctx, email, result); err != nil {
			m.logger.Warn("newsletter notify failed",
				slog.String("subscriber", subscriberRef(email)),
				slog.Any("error", err))
		}
	}
	return result, nil
}

// upsert performs the read-then-write inside one transaction. Store errors are
// returned as *PersistenceError except ErrDuplicateEmail, which the caller
// handles.
func (m *Manager) upsert(ctx context.Context, email string) (Result, error) {
	var result Result
	err := m.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.FindByEmail(ctx, email)
		switch {
		case errors.Is(err, ErrNotFound):
			now := m.now()
			sub := &Subscriber{Email: email, IsActive: true, SubscribedAt: now}
			if err := repo.Insert(ctx, sub); err != nil {
				if errors.Is(err, ErrDuplicateEmail) {
					return err
				}
				return &PersistenceError{Op: "insert", Err: err}
			}
			result = ResultCreated
			return nil
		case err != nil:
			return &PersistenceError{Op: "find", Err: err}
		}

		if existing.IsActive {
			result = ResultAlreadyActive
			return nil
		}

		existing.IsActive = true
		existing.SubscribedAt = m.now()
		if err := repo.Update(ctx, existing); err != nil {
			return &PersistenceError{Op: "update", Err: err}
		}
		result = ResultReactivated
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func subscriberRef(email string) string {
	return shared.EmailRef(email)
}
