// Package identity maps source identities onto canonical users.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/normalize"
)

// ErrEmailTaken is returned by a Store when a new user's derived email collides
// with an existing account.
var ErrEmailTaken = errors.New("derived email already taken")

// Store is the user persistence the reconciler needs.
type Store interface {
	// UpsertUser inserts by natural key or updates mutable attributes in place.
	// Email is only written on insert.
	UpsertUser(ctx context.Context, user domain.User) (id int64, created bool, err error)
	FindUserID(ctx context.Context, naturalKey string) (int64, bool, error)
}

const defaultEmailAttempts = 50

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithEmailDomain sets the domain of derived account emails.
func WithEmailDomain(domain string) Option {
	return func(r *Reconciler) {
		r.emailDomain = domain
	}
}

type alias struct {
	source  string
	localID string
}

// Reconciler resolves natural keys to canonical user IDs for a single run. Its
// cache and alias table are rebuilt for every run; the store stays authoritative.
type Reconciler struct {
	store         Store
	cache         *Cache
	aliases       map[alias]string
	emailDomain   string
	emailAttempts int
	logger        *zap.Logger
}

// NewReconciler constructs a Reconciler with a bounded key cache.
func NewReconciler(store Store, cacheSize int, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:         store,
		cache:         NewCache(cacheSize),
		aliases:       make(map[alias]string),
		emailDomain:   "gym.local",
		emailAttempts: defaultEmailAttempts,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile creates or updates the canonical user for u and returns its ID.
func (r *Reconciler) Reconcile(ctx context.Context, sourceName string, u normalize.User) (int64, domain.RowResult) {
	key := u.Ref.NaturalKey
	if key == "" {
		return 0, domain.Skipped(domain.SkipUnresolvableIdentity, domain.ErrUnresolvableIdentity)
	}

	user := domain.User{
		NaturalKey: key,
		Username:   u.Username,
		Role:       u.Role,
		Age:        u.Age,
		Gender:     u.Gender,
		Goal:       u.Goal,
		HeightCM:   u.HeightCM,
		WeightKG:   u.WeightKG,
	}

	local := emailLocalPart(key)
	for attempt := 1; attempt <= r.emailAttempts; attempt++ {
		user.Email = r.email(local, attempt)
		id, created, err := r.store.UpsertUser(ctx, user)
		if errors.Is(err, ErrEmailTaken) {
			r.logger.Debug("derived email taken, retrying with suffix",
				zap.String("natural_key", key), zap.String("email", user.Email))
			continue
		}
		if err != nil {
			return 0, domain.Fatal(fmt.Errorf("%w: upsert user %q: %v", domain.ErrTransactionFailure, key, err))
		}

		r.cache.Put(key, id)
		if u.Ref.LocalID != "" {
			r.aliases[alias{source: sourceName, localID: u.Ref.LocalID}] = key
		}
		if created {
			return id, domain.Inserted()
		}
		return id, domain.Updated()
	}
	return 0, domain.Fatal(fmt.Errorf("%w: no free email for %q after %d attempts", domain.ErrTransactionFailure, key, r.emailAttempts))
}

// Resolve returns the canonical ID a record row refers to. Records never create users.
func (r *Reconciler) Resolve(ctx context.Context, sourceName string, ref normalize.UserRef) (int64, error) {
	key := ref.NaturalKey
	if key == "" && ref.LocalID != "" {
		key = r.aliases[alias{source: sourceName, localID: ref.LocalID}]
	}
	if key == "" {
		return 0, fmt.Errorf("%w: %s user_id %q was never reconciled", domain.ErrUnresolvableIdentity, sourceName, ref.LocalID)
	}

	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}
	id, found, err := r.store.FindUserID(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: find user %q: %v", domain.ErrTransactionFailure, key, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: unknown user %q", domain.ErrUnresolvableIdentity, key)
	}
	r.cache.Put(key, id)
	return id, nil
}

func (r *Reconciler) email(local string, attempt int) string {
	if attempt > 1 {
		local += "-" + strconv.Itoa(attempt)
	}
	return local + "@" + r.emailDomain
}

// emailLocalPart transliterates the key into an ASCII mailbox name.
func emailLocalPart(key string) string {
	local := slug.Make(key)
	if local == "" {
		return "user"
	}
	return local
}
