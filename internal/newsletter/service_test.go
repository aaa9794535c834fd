package newsletter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu      sync.Mutex
	records map[string]*Subscriber
	nextID  int64

	finds   int
	inserts int
	updates int

	// Error injection
	findError   error
	insertError error
	updateError error
	txError     error

	// raceOnce simulates another process inserting the row right before our
	// first insert lands.
	raceOnce *Subscriber
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: make(map[string]*Subscriber), nextID: 1}
}

func (m *mockRepository) seed(email string, active bool, subscribedAt time.Time) *Subscriber {
	sub := &Subscriber{
		ID:           m.nextID,
		Email:        email,
		IsActive:     active,
		SubscribedAt: subscribedAt,
		CreatedAt:    subscribedAt,
		UpdatedAt:    subscribedAt,
	}
	m.nextID++
	m.records[email] = sub
	return sub
}

func (m *mockRepository) writes() int {
	return m.inserts + m.updates
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.findError != nil {
		return nil, m.findError
	}
	sub, ok := m.records[email]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

func (m *mockRepository) Insert(ctx context.Context, sub *Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertError != nil {
		return m.insertError
	}
	if m.raceOnce != nil {
		winner := m.raceOnce
		m.raceOnce = nil
		winner.ID = m.nextID
		m.nextID++
		m.records[winner.Email] = winner
	}
	if _, exists := m.records[sub.Email]; exists {
		return ErrDuplicateEmail
	}
	m.inserts++
	sub.ID = m.nextID
	m.nextID++
	sub.CreatedAt = sub.SubscribedAt
	sub.UpdatedAt = sub.SubscribedAt
	clone := *sub
	m.records[sub.Email] = &clone
	return nil
}

func (m *mockRepository) Update(ctx context.Context, sub *Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return m.updateError
	}
	if _, ok := m.records[sub.Email]; !ok {
		return ErrNotFound
	}
	m.updates++
	clone := *sub
	m.records[sub.Email] = &clone
	return nil
}

type recordingNotifier struct {
	calls []Result
	err   error
}

func (n *recordingNotifier) SubscriptionConfirmed(ctx context.Context, email string, result Result) error {
	n.calls = append(n.calls, result)
	return n.err
}

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestManager(repo Repository, notifier Notifier) *Manager {
	return NewManager(repo, ManagerConfig{
		Notifier: notifier,
		Now:      func() time.Time { return fixedNow },
	})
}

// ============================================================================
// VALIDATION
// ============================================================================

func TestSubscribeRejectsInvalidEmails(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"bad-email",
		"missing-at.example.com",
		"two@@example.com",
		"spaces in@example.com",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, input := range inputs {
		repo := newMockRepository()
		manager := newTestManager(repo, nil)

		result, err := manager.Subscribe(context.Background(), input)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %q", input)
		assert.NotEmpty(t, verr.First("email"), "input %q", input)
		assert.Zero(t, result)
		assert.Zero(t, repo.finds, "no lookup for %q", input)
		assert.Zero(t, repo.writes(), "no write for %q", input)
	}
}

func TestSubscribeValidationMessages(t *testing.T) {
	manager := newTestManager(newMockRepository(), nil)

	_, err := manager.Subscribe(context.Background(), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "The email field is required.", verr.First("email"))

	_, err = manager.Subscribe(context.Background(), "bad-email")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "The email field must be a valid email address.", verr.First("email"))
	assert.False(t, errors.As(err, new(*PersistenceError)))
}

func TestSubscribeRejectsOverlongEmail(t *testing.T) {
	manager := newTestManager(newMockRepository(), nil)
	local := strings.Repeat("a", 60)
	domain := strings.Repeat("b", 60)
	email := local + "@" + domain + "." + domain + "." + domain + "." + domain + ".com"
	require.Greater(t, len(email), MaxEmailLength)

	_, err := manager.Subscribe(context.Background(), email)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

func TestSubscribeCreatesNewSubscriber(t *testing.T) {
	repo := newMockRepository()
	notifier := &recordingNotifier{}
	manager := newTestManager(repo, notifier)

	result, err := manager.Subscribe(context.Background(), "new@example.com")

	require.NoError(t, err)
	assert.Equal(t, ResultCreated, result)
	require.Len(t, repo.records, 1)
	stored := repo.records["new@example.com"]
	assert.True(t, stored.IsActive)
	assert.Equal(t, fixedNow, stored.SubscribedAt)
	assert.Equal(t, 1, repo.inserts)
	assert.Zero(t, repo.updates)
	assert.Equal(t, []Result{ResultCreated}, notifier.calls)
}

func TestSubscribeTrimsInput(t *testing.T) {
	repo := newMockRepository()
	manager := newTestManager(repo, nil)

	result, err := manager.Subscribe(context.Background(), "  new@example.com\n")

	require.NoError(t, err)
	assert.Equal(t, ResultCreated, result)
	assert.Contains(t, repo.records, "new@example.com")
}

func TestSubscribeReactivatesInactiveSubscriber(t *testing.T) {
	repo := newMockRepository()
	earlier := fixedNow.AddDate(0, -6, 0)
	repo.seed("old@example.com", false, earlier)
	notifier := &recordingNotifier{}
	manager := newTestManager(repo, notifier)

	result, err := manager.Subscribe(context.Background(), "old@example.com")

	require.NoError(t, err)
	assert.Equal(t, ResultReactivated, result)
	require.Len(t, repo.records, 1, "no second record")
	stored := repo.records["old@example.com"]
	assert.True(t, stored.IsActive)
	assert.Equal(t, fixedNow, stored.SubscribedAt)
	assert.Equal(t, earlier, stored.CreatedAt)
	assert.Zero(t, repo.inserts)
	assert.Equal(t, 1, repo.updates)
	assert.Equal(t, []Result{ResultReactivated}, notifier.calls)
}

func TestSubscribeAlreadyActiveIsNoop(t *testing.T) {
	repo := newMockRepository()
	earlier := fixedNow.AddDate(0, -1, 0)
	repo.seed("active@example.com", true, earlier)
	notifier := &recordingNotifier{}
	manager := newTestManager(repo, notifier)

	for i := 0; i < 2; i++ {
		before := *repo.records["active@example.com"]

		result, err := manager.Subscribe(context.Background(), "active@example.com")

		require.NoError(t, err)
		assert.Equal(t, ResultAlreadyActive, result)
		assert.Equal(t, before, *repo.records["active@example.com"])
	}
	assert.Zero(t, repo.writes())
	assert.Empty(t, notifier.calls)
}

func TestSubscribeMatchesEmailExactly(t *testing.T) {
	repo := newMockRepository()
	repo.seed("Case@Example.com", true, fixedNow)
	manager := newTestManager(repo, nil)

	result, err := manager.Subscribe(context.Background(), "case@example.com")

	require.NoError(t, err)
	assert.Equal(t, ResultCreated, result)
	assert.Len(t, repo.records, 2)
}

func TestSubscribeResolvesDuplicateInsertRace(t *testing.T) {
	repo := newMockRepository()
	repo.raceOnce = &Subscriber{Email: "race@example.com", IsActive: true, SubscribedAt: fixedNow}
	notifier := &recordingNotifier{}
	manager := newTestManager(repo, notifier)

	result, err := manager.Subscribe(context.Background(), "race@example.com")

	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyActive, result)
	assert.Len(t, repo.records, 1)
	assert.Equal(t, 2, repo.finds)
	assert.Empty(t, notifier.calls)
}

// ============================================================================
// FAILURES
// ============================================================================

func TestSubscribeWrapsStoreFailures(t *testing.T) {
	boom := errors.New("connection reset")
	cases := []struct {
		name  string
		setup func(*mockRepository)
		op    string
	}{
		{name: "find", setup: func(m *mockRepository) { m.findError = boom }, op: "find"},
		{name: "insert", setup: func(m *mockRepository) { m.insertError = boom }, op: "insert"},
		{name: "update", setup: func(m *mockRepository) {
			m.seed("user@example.com", false, fixedNow)
			m.updateError = boom
		}, op: "update"},
		{name: "begin", setup: func(m *mockRepository) { m.txError = boom }, op: "transaction"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepository()
			tc.setup(repo)
			notifier := &recordingNotifier{}
			manager := newTestManager(repo, notifier)

			result, err := manager.Subscribe(context.Background(), "user@example.com")

			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.op, perr.Op)
			assert.ErrorIs(t, err, boom)
			assert.False(t, errors.As(err, new(*ValidationError)))
			assert.Zero(t, result)
			assert.Empty(t, notifier.calls)
		})
	}
}

func TestNotifierFailureDoesNotFailSubscribe(t *testing.T) {
	repo := newMockRepository()
	notifier := &recordingNotifier{err: errors.New("queue down")}
	manager := newTestManager(repo, notifier)

	result, err := manager.Subscribe(context.Background(), "new@example.com")

	require.NoError(t, err)
	assert.Equal(t, ResultCreated, result)
	assert.Len(t, notifier.calls, 1)
}

// ============================================================================
// CONCURRENCY
// ============================================================================

// gatedRepository holds every transaction until release is closed.
type gatedRepository struct {
	*mockRepository
	entered chan struct{}
	release chan struct{}
}

func newGatedRepository() *gatedRepository {
	return &gatedRepository{
		mockRepository: newMockRepository(),
		entered:        make(chan struct{}, 8),
		release:        make(chan struct{}),
	}
}

func (g *gatedRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	g.entered <- struct{}{}
	<-g.release
	return g.mockRepository.WithTx(ctx, fn)
}

func waitEntered(t *testing.T, repo *gatedRepository) {
	t.Helper()
	select {
	case <-repo.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe never reached the repository")
	}
}

type subscribeOutcome struct {
	result Result
	err    error
}

func TestConcurrentFirstSubscribeCreatesOnce(t *testing.T) {
	repo := newGatedRepository()
	notifier := &recordingNotifier{}
	manager := newTestManager(repo, notifier)

	outcomes := make(chan subscribeOutcome, 2)
	run := func() {
		result, err := manager.Subscribe(context.Background(), "new@example.com")
		outcomes <- subscribeOutcome{result: result, err: err}
	}

	go run()
	waitEntered(t, repo)
	go run()
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	var results []Result
	for i := 0; i < 2; i++ {
		out := <-outcomes
		require.NoError(t, out.err)
		results = append(results, out.result)
	}

	assert.ElementsMatch(t, []Result{ResultCreated, ResultAlreadyActive}, results)
	assert.Len(t, repo.records, 1)
	assert.Equal(t, 1, repo.inserts)
	assert.Equal(t, []Result{ResultCreated}, notifier.calls)
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := newGatedRepository()
	manager := newTestManager(repo, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan subscribeOutcome, 1)
	go func() {
		result, err := manager.Subscribe(firstCtx, "new@example.com")
		first <- subscribeOutcome{result: result, err: err}
	}()
	waitEntered(t, repo)

	second := make(chan subscribeOutcome, 1)
	go func() {
		result, err := manager.Subscribe(context.Background(), "new@example.com")
		second <- subscribeOutcome{result: result, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	out := <-first
	var perr *PersistenceError
	require.ErrorAs(t, out.err, &perr)
	assert.ErrorIs(t, out.err, context.Canceled)

	close(repo.release)
	out = <-second
	require.NoError(t, out.err)
	assert.Equal(t, ResultAlreadyActive, out.result)
	assert.Len(t, repo.records, 1)
}

func TestSubscribeHonoursCallerDeadline(t *testing.T) {
	repo := newGatedRepository()
	manager := newTestManager(repo, nil)
	defer close(repo.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := manager.Subscribe(ctx, "slow@example.com")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, result)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "created", ResultCreated.String())
	assert.Equal(t, "reactivated", ResultReactivated.String())
	assert.Equal(t, "already_active", ResultAlreadyActive.String())
	assert.Equal(t, "unknown", Result(0).String())
}
