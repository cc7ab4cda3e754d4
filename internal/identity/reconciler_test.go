package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/normalize"
)

type stubStore struct {
	users  map[string]domain.User
	emails map[string]string
	nextID int64
	finds  int
	err    error
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]domain.User), emails: make(map[string]string)}
}

func (s *stubStore) UpsertUser(_ context.Context, u domain.User) (int64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	if existing, ok := s.users[u.NaturalKey]; ok {
		u.ID = existing.ID
		u.Email = existing.Email
		s.users[u.NaturalKey] = u
		return u.ID, false, nil
	}
	if owner, taken := s.emails[u.Email]; taken && owner != u.NaturalKey {
		return 0, false, ErrEmailTaken
	}
	s.nextID++
	u.ID = s.nextID
	s.users[u.NaturalKey] = u
	s.emails[u.Email] = u.NaturalKey
	return u.ID, true, nil
}

func (s *stubStore) FindUserID(_ context.Context, key string) (int64, bool, error) {
	s.finds++
	if s.err != nil {
		return 0, false, s.err
	}
	u, ok := s.users[key]
	return u.ID, ok, nil
}

func user(key string) normalize.User {
	return normalize.User{Ref: normalize.UserRef{NaturalKey: key}, Username: key, Role: domain.RoleStudent}
}

func TestReconcileIsIdempotentPerNaturalKey(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()

	first, res := NewReconciler(store, 10).Reconcile(ctx, "a", user("alice"))
	require.Equal(t, domain.OutcomeInserted, res.Outcome)

	age := 31
	again := user("alice")
	again.Age = &age
	second, res := NewReconciler(store, 10).Reconcile(ctx, "b", again)
	require.Equal(t, domain.OutcomeUpdated, res.Outcome)
	require.Equal(t, first, second)
	require.Len(t, store.users, 1)
	require.Equal(t, 31, *store.users["alice"].Age)
}

func TestReconcileAppendsSuffixOnEmailCollision(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	r := NewReconciler(store, 10, WithEmailDomain("example.test"))

	_, res := r.Reconcile(ctx, "a", user("Bob Smith"))
	require.False(t, res.IsFatal())
	_, res = r.Reconcile(ctx, "a", user("bob-smith"))
	require.Equal(t, domain.OutcomeInserted, res.Outcome)
	_, res = r.Reconcile(ctx, "a", user("BOB SMITH"))
	require.Equal(t, domain.OutcomeInserted, res.Outcome)

	require.Equal(t, "bob-smith@example.test", store.users["Bob Smith"].Email)
	require.Equal(t, "bob-smith-2@example.test", store.users["bob-smith"].Email)
	require.Equal(t, "bob-smith-3@example.test", store.users["BOB SMITH"].Email)
}

func TestReconcileEmptyKeyIsSkipped(t *testing.T) {
	store := newStubStore()
	_, res := NewReconciler(store, 10).Reconcile(context.Background(), "a", normalize.User{})
	require.Equal(t, domain.OutcomeSkipped, res.Outcome)
	require.Equal(t, domain.SkipUnresolvableIdentity, res.Reason)
	require.Empty(t, store.users)
}

func TestReconcileStoreFailureIsFatal(t *testing.T) {
	store := newStubStore()
	store.err = errors.New("connection reset")
	_, res := NewReconciler(store, 10).Reconcile(context.Background(), "a", user("alice"))
	require.True(t, res.IsFatal())
	require.ErrorIs(t, res.Err, domain.ErrTransactionFailure)
}

func TestResolveUsesAliasesAndCache(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	r := NewReconciler(store, 10)

	u := user("carol")
	u.Ref.LocalID = "42"
	id, _ := r.Reconcile(ctx, "survey", u)

	got, err := r.Resolve(ctx, "survey", normalize.UserRef{LocalID: "42"})
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Zero(t, store.finds, "cache should answer keys reconciled this run")

	_, err = r.Resolve(ctx, "other-source", normalize.UserRef{LocalID: "42"})
	require.ErrorIs(t, err, domain.ErrUnresolvableIdentity)
}

func TestResolveFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	id, _ := NewReconciler(store, 10).Reconcile(ctx, "a", user("dave"))

	fresh := NewReconciler(store, 10)
	got, err := fresh.Resolve(ctx, "b", normalize.UserRef{NaturalKey: "dave"})
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, 1, store.finds)

	_, err = fresh.Resolve(ctx, "b", normalize.UserRef{NaturalKey: "dave"})
	require.NoError(t, err)
	require.Equal(t, 1, store.finds)

	_, err = fresh.Resolve(ctx, "b", normalize.UserRef{NaturalKey: "nobody"})
	require.ErrorIs(t, err, domain.ErrUnresolvableIdentity)
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	c := NewCache(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	c.Put("c", 3)

	_, ok := c.Get("a")
	require.False(t, ok)
	id, ok := c.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(2), id)
	require.Equal(t, 2, c.Len())

	c.Reset()
	require.Zero(t, c.Len())

	disabled := NewCache(0)
	disabled.Put("a", 1)
	_, ok = disabled.Get("a")
	require.False(t, ok)
}
