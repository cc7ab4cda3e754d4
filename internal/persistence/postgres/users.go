package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/identity"
)

const (
	uniqueViolation = "23505"
	usersEmailKey   = "users_email_key"
)

// UpsertUser inserts the user by natural key or updates its mutable attributes.
// Absent optional attributes never erase stored ones; an empty role means STUDENT
// on insert and keeps the stored role on update. Email is only written on
// insert; a collision on it is reported as identity.ErrEmailTaken.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) (int64, bool, error) {
	const stmt = `INSERT INTO users (natural_key, username, email, role, age, gender, fitness_goal, height_cm, weight_kg)
        VALUES ($1,$2,$3,COALESCE($4::text, $10::text),$5,$6,$7,$8,$9)
        ON CONFLICT (natural_key) DO UPDATE SET
            username     = EXCLUDED.username,
            role         = COALESCE($4::text, users.role),
            age          = COALESCE(EXCLUDED.age, users.age),
            gender       = COALESCE(EXCLUDED.gender, users.gender),
            fitness_goal = COALESCE(EXCLUDED.fitness_goal, users.fitness_goal),
            height_cm    = COALESCE(EXCLUDED.height_cm, users.height_cm),
            weight_kg    = COALESCE(EXCLUDED.weight_kg, users.weight_kg),
            updated_at   = NOW()
        RETURNING id, (xmax = 0) AS inserted`

	var (
		id       int64
		inserted bool
	)
	err := s.pool.QueryRow(ctx, stmt,
		user.NaturalKey,
		user.Username,
		user.Email,
		nullIfEmpty(string(user.Role)),
		user.Age,
		nullIfEmpty(string(user.Gender)),
		nullIfEmpty(string(user.Goal)),
		user.HeightCM,
		user.WeightKG,
		string(domain.RoleStudent),
	).Scan(&id, &inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == usersEmailKey {
			return 0, false, identity.ErrEmailTaken
		}
		return 0, false, err
	}
	return id, inserted, nil
}

// FindUserID looks a canonical user up by natural key.
func (s *Store) FindUserID(ctx context.Context, naturalKey string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE natural_key = $1`, naturalKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetUser loads a user by ID; nil when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, natural_key, username, email, role, age, gender, fitness_goal, height_cm, weight_kg, created_at, updated_at
        FROM users WHERE id = $1`

	var (
		u            domain.User
		role         string
		gender, goal *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.NaturalKey, &u.Username, &u.Email, &role, &u.Age, &gender, &goal,
		&u.HeightCM, &u.WeightKG, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Gender = domain.Gender(derefString(gender))
	u.Goal = domain.Goal(derefString(goal))
	return &u, nil
}
