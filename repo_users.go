package credentials

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// digestKindSession tags session digests in the user_digests index; the
// code kinds reuse their CodeKind values.
const digestKindSession = "session"

// UserDigest is one row of the explicit secondary index mapping a stored
// digest back to its owning user. It is rebuilt transactionally on every
// aggregate save so cross-user lookups stay exact-match only.
type UserDigest struct {
	bun.BaseModel `bun:"table:user_digests,alias:udg"`

	Digest string    `bun:"digest,pk" json:"digest"`
	Kind   string    `bun:"kind,notnull" json:"kind"`
	UserID uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
}

// UserStore is the credential store contract the managers program against.
// Digest lookups are exact-match only; expiry filtering is always a
// secondary in-memory check against the matched record, never pushed into
// the store query.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindBySessionDigest(ctx context.Context, digest string) (*User, error)
	FindByCodeDigest(ctx context.Context, kind CodeKind, digest string) (*User, error)
	Register(ctx context.Context, user *User) (*User, error)
	Save(ctx context.Context, user *User) error
	DeleteExpiredUnverified(ctx context.Context) (int, error)
}

// Users extends the store contract with the generic repository plumbing.
type Users interface {
	repository.Repository[*User]
	UserStore

	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// NormalizeEmail trims and lowercases an address before any lookup or
// uniqueness check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapRecordErr(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapRecordErr(err, map[string]any{"email": email})
	}
	return record, nil
}

func (a *users) FindBySessionDigest(ctx context.Context, digest string) (*User, error) {
	return a.findByDigest(ctx, digestKindSession, digest)
}

func (a *users) FindByCodeDigest(ctx context.Context, kind CodeKind, digest string) (*User, error) {
	return a.findByDigest(ctx, kind, digest)
}

// findByDigest resolves the owning user through the user_digests index.
// The query carries no expiry filter on purpose: a cross-collection
// existence check cannot tell which embedded record matched, so the caller
// re-verifies expiry against the exact sub-record after the fetch.
func (a *users) findByDigest(ctx context.Context, kind, digest string) (*User, error) {
	if digest == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Join("JOIN user_digests AS udg ON udg.user_id = ?TableAlias.id").
		Where("udg.kind = ?", kind).
		Where("udg.digest = ?", digest).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapRecordErr(err, map[string]any{"kind": kind})
	}
	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	var out *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.RegisterTx(ctx, tx, user)
		return err
	})
	return out, err
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	existing := &User{}
	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.email = ?", user.Email).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return nil, ErrEmailRegistered.Clone().WithMetadata(map[string]any{
			"email": user.Email,
		})
	}
	if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	if err := a.syncDigestsTx(ctx, tx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Save persists the whole aggregate with an optimistic version check and
// rebuilds the digest index in the same transaction.
func (a *users) Save(ctx context.Context, user *User) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.SaveTx(ctx, tx, user)
	})
}

func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) error {
	prev := user.Version
	now := time.Now()
	user.Version = prev + 1
	user.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(user).
		WherePK().
		Where("?TableAlias.version = ?", prev).
		Exec(ctx)
	if err != nil {
		user.Version = prev
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save user aggregate")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		user.Version = prev
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to inspect save result")
	}
	if rows == 0 {
		user.Version = prev
		return ErrVersionConflict.Clone().WithMetadata(map[string]any{
			"id":      user.ID.String(),
			"version": prev,
		})
	}

	return a.syncDigestsTx(ctx, tx, user)
}

func (a *users) syncDigestsTx(ctx context.Context, tx bun.IDB, user *User) error {
	if _, err := tx.NewDelete().
		Model((*UserDigest)(nil)).
		Where("?TableAlias.user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear digest index")
	}

	refs := user.DigestRefs()
	if len(refs) == 0 {
		return nil
	}

	rows := make([]UserDigest, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, UserDigest{
			Digest: ref.Digest,
			Kind:   ref.Kind,
			UserID: user.ID,
		})
	}

	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rebuild digest index")
	}

	return nil
}

// DeleteExpiredUnverified removes every user whose email verification is
// still pending past its expiry. This is the only place a User entity is
// ever deleted.
func (a *users) DeleteExpiredUnverified(ctx context.Context) (int, error) {
	var count int
	err := a.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		if _, err := tx.NewDelete().
			Model((*UserDigest)(nil)).
			Where("?TableAlias.user_id IN (?)", tx.NewSelect().
				Model((*User)(nil)).
				Column("id").
				Where("?TableAlias.verified = ?", false).
				Where("?TableAlias.verification_code <> ''").
				Where("?TableAlias.verification_code_expires_at < ?", now)).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep digest index")
		}

		res, err := tx.NewDelete().
			Model((*User)(nil)).
			Where("?TableAlias.verified = ?", false).
			Where("?TableAlias.verification_code <> ''").
			Where("?TableAlias.verification_code_expires_at < ?", now).
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep unverified users")
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to inspect sweep result")
		}
		count = int(rows)
		return nil
	})

	return count, err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Version == 0 {
		record.Version = 1
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
		record.UpdatedAt = &now
	}
}

func wrapRecordErr(err error, meta map[string]any) error {
	if repository.IsRecordNotFound(err) {
		return repository.NewRecordNotFound().WithMetadata(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
}
