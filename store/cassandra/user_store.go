package cassandra

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelasquez/identity-cassandra/config"
	"github.com/avelasquez/identity-cassandra/domain"
	"github.com/avelasquez/identity-cassandra/store"
)

// Tokens owned by the store itself (authenticator key, recovery codes)
// are kept under a reserved provider name so they never collide with
// host-registered external logins.
const (
	internalLoginProvider     = "[identity-cassandra]"
	authenticatorKeyTokenName = "AuthenticatorKey"
	recoveryCodesTokenName    = "RecoveryCodes"
	recoveryCodeSeparator     = ";"
)

const userColumns = "id, username, normalized_username, email, normalized_email," +
	" email_confirmation_time, password_hash, security_stamp, phone," +
	" two_factor_enabled, lockout, logins, tokens, roles"

// UserStore persists users and their collections. It holds no state
// between calls beyond the session; concurrent use is delegated to the
// driver. Two concurrent updates of the same entity are a last-write-wins
// race at the transport level: there is no optimistic-concurrency check,
// which is a documented limitation of this store.
type UserStore struct {
	session    *gocql.Session
	opts       *config.Options
	logger     *zap.Logger
	tracer     gocql.Tracer
	keyspace   string
	usersTable string
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore builds a user store over an open session.
func NewUserStore(session *gocql.Session, opts *config.Options, logger *zap.Logger) (*UserStore, error) {
	if session == nil {
		return nil, store.InvalidArgument("session must not be nil")
	}
	if opts == nil {
		return nil, store.InvalidArgument("options must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &UserStore{
		session:    session,
		opts:       opts,
		logger:     logger,
		keyspace:   opts.KeyspaceName,
		usersTable: opts.Tables.UsersTable(),
	}
	if opts.Query.TracingEnabled {
		s.tracer = gocql.NewTraceWriter(session, zap.NewStdLog(logger.Named("trace")).Writer())
	}
	return s, nil
}

// CreateUser inserts a new user row.
func (s *UserStore) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.keyspace, s.usersTable, userColumns)
	if err := s.query(ctx, stmt, s.bindUser(user)...).Exec(); err != nil {
		return s.fail("create user", err)
	}
	return nil
}

// UpdateUser persists the full user row. Zero-valued lockout and phone
// sub-records are pruned to absence first.
func (s *UserStore) UpdateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	user.CleanUp()

	stmt := fmt.Sprintf("UPDATE %s.%s SET"+
		" username = ?, normalized_username = ?, email = ?, normalized_email = ?,"+
		" email_confirmation_time = ?, password_hash = ?, security_stamp = ?, phone = ?,"+
		" two_factor_enabled = ?, lockout = ?, logins = ?, tokens = ?, roles = ?"+
		" WHERE id = ?", s.keyspace, s.usersTable)
	err := s.query(ctx, stmt,
		user.Username,
		user.NormalizedUsername,
		user.Email,
		user.NormalizedEmail,
		user.EmailConfirmationTime,
		user.PasswordHash,
		user.SecurityStamp,
		user.Phone,
		user.TwoFactorEnabled,
		user.Lockout,
		user.Logins,
		user.Tokens,
		user.Roles,
		gocql.UUID(user.ID),
	).Exec()
	if err != nil {
		return s.fail("update user", err)
	}
	return nil
}

// DeleteUser removes the user row. Secondary-view entries are retracted
// by the backing store as part of view maintenance.
func (s *UserStore) DeleteUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	stmt := fmt.Sprintf("DELETE FROM %s.%s WHERE id = ?", s.keyspace, s.usersTable)
	if err := s.query(ctx, stmt, gocql.UUID(user.ID)).Exec(); err != nil {
		return s.fail("delete user", err)
	}
	return nil
}

// FindUserByID looks up a user by primary key. Returns (nil, nil) when no
// user matches.
func (s *UserStore) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.%s WHERE id = ?", userColumns, s.keyspace, s.usersTable)
	return s.scanUser("find user by id", s.query(ctx, stmt, gocql.UUID(id)))
}

// FindUserByUsername looks up a user through the users_by_username view.
func (s *UserStore) FindUserByUsername(ctx context.Context, normalizedUsername string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if normalizedUsername == "" {
		return nil, store.InvalidArgument("normalized username must not be empty")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.users_by_username WHERE normalized_username = ? LIMIT 1",
		userColumns, s.keyspace)
	return s.scanUser("find user by username", s.query(ctx, stmt, normalizedUsername))
}

// FindUserByEmail looks up a user through the users_by_email view.
func (s *UserStore) FindUserByEmail(ctx context.Context, normalizedEmail string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if normalizedEmail == "" {
		return nil, store.InvalidArgument("normalized email must not be empty")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.users_by_email WHERE normalized_email = ? LIMIT 1",
		userColumns, s.keyspace)
	return s.scanUser("find user by email", s.query(ctx, stmt, normalizedEmail))
}

// FindUserByLogin looks up the user owning the (provider, key) external
// login. The logins column holds frozen sub-records, so the match binds a
// full record with the display name mirroring the provider, the same
// shape AddLogin registers for host logins.
func (s *UserStore) FindUserByLogin(ctx context.Context, loginProvider, providerKey string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loginProvider == "" || providerKey == "" {
		return nil, store.InvalidArgument("login provider and provider key must not be empty")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.%s WHERE logins CONTAINS ? ALLOW FILTERING",
		userColumns, s.keyspace, s.usersTable)
	login := domain.LoginInfo{
		LoginProvider:       loginProvider,
		ProviderKey:         providerKey,
		ProviderDisplayName: loginProvider,
	}
	return s.scanUser("find user by login", s.query(ctx, stmt, login))
}

// UsersInRole returns every user whose membership set contains the
// normalized role name, resolved through the membership index.
func (s *UserStore) UsersInRole(ctx context.Context, normalizedRoleName string) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if normalizedRoleName == "" {
		return nil, store.InvalidArgument("normalized role name must not be empty")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.%s WHERE roles CONTAINS ?",
		userColumns, s.keyspace, s.usersTable)
	return s.scanUsers("find users in role", s.query(ctx, stmt, normalizedRoleName))
}

// UsersForClaim returns every user holding the claim. Owners come from
// the user_claims_by_type_and_value view, then the user rows are fetched
// by id.
func (s *UserStore) UsersForClaim(ctx context.Context, claim store.Claim) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if claim.Type == "" || claim.Value == "" {
		return nil, store.InvalidArgument("claim type and value must not be empty")
	}

	idStmt := fmt.Sprintf("SELECT user_id FROM %s.user_claims_by_type_and_value WHERE type = ? AND value = ?",
		s.keyspace)
	iter := s.query(ctx, idStmt, claim.Type, claim.Value).Iter()

	var ids []gocql.UUID
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, s.fail("find claim owners", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.%s WHERE id IN ?", userColumns, s.keyspace, s.usersTable)
	return s.scanUsers("find users for claim", s.query(ctx, stmt, ids))
}

// SetAuthenticatorKey stores the authenticator key as an internal token.
func (s *UserStore) SetAuthenticatorKey(user *domain.User, key string) error {
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}
	user.SetToken(internalLoginProvider, authenticatorKeyTokenName, key)
	return nil
}

// AuthenticatorKey returns the stored authenticator key, or "" when none
// has been set.
func (s *UserStore) AuthenticatorKey(user *domain.User) (string, error) {
	if user == nil {
		return "", store.InvalidArgument("user must not be nil")
	}
	if token := user.Token(internalLoginProvider, authenticatorKeyTokenName); token != nil {
		return token.Value, nil
	}
	return "", nil
}

// ReplaceCodes replaces the whole recovery-code set. Codes are stored as
// one delimited string under a reserved internal token name; UpdateUser
// persists the change.
func (s *UserStore) ReplaceCodes(user *domain.User, codes []string) error {
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}
	user.SetToken(internalLoginProvider, recoveryCodesTokenName, strings.Join(codes, recoveryCodeSeparator))
	return nil
}

// RedeemCode consumes a recovery code. An unknown code returns false and
// leaves the stored set untouched; a known code is removed from the set
// and true is returned.
func (s *UserStore) RedeemCode(user *domain.User, code string) (bool, error) {
	if user == nil {
		return false, store.InvalidArgument("user must not be nil")
	}
	if code == "" {
		return false, store.InvalidArgument("code must not be empty")
	}

	merged := ""
	if token := user.Token(internalLoginProvider, recoveryCodesTokenName); token != nil {
		merged = token.Value
	}
	split := strings.Split(merged, recoveryCodeSeparator)

	found := false
	remaining := make([]string, 0, len(split))
	for _, c := range split {
		if c == code {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if !found {
		return false, nil
	}

	return true, s.ReplaceCodes(user, remaining)
}

// CountCodes recomputes the number of remaining recovery codes from the
// stored delimited string.
func (s *UserStore) CountCodes(user *domain.User) (int, error) {
	if user == nil {
		return 0, store.InvalidArgument("user must not be nil")
	}

	token := user.Token(internalLoginProvider, recoveryCodesTokenName)
	if token == nil || token.Value == "" {
		return 0, nil
	}
	return len(strings.Split(token.Value, recoveryCodeSeparator)), nil
}

// UserClaims returns the claims held in the user's companion collection.
func (s *UserStore) UserClaims(ctx context.Context, user *domain.User) ([]store.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, store.InvalidArgument("user must not be nil")
	}

	stmt := fmt.Sprintf("SELECT type, value FROM %s.user_claims WHERE user_id = ?", s.keyspace)
	iter := s.query(ctx, stmt, gocql.UUID(user.ID)).Iter()

	var claims []store.Claim
	var claim store.Claim
	for iter.Scan(&claim.Type, &claim.Value) {
		claims = append(claims, claim)
	}
	if err := iter.Close(); err != nil {
		return nil, s.fail("get user claims", err)
	}
	return claims, nil
}

// AddUserClaims inserts the claims in one batch. The composite key of the
// claim table deduplicates re-added claims.
func (s *UserStore) AddUserClaims(ctx context.Context, user *domain.User, claims []store.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	stmt := fmt.Sprintf("INSERT INTO %s.user_claims (user_id, type, value) VALUES (?, ?, ?)", s.keyspace)
	for _, claim := range claims {
		batch.Query(stmt, gocql.UUID(user.ID), claim.Type, claim.Value)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return s.fail("add user claims", err)
	}
	return nil
}

// RemoveUserClaims deletes the claims in one batch.
func (s *UserStore) RemoveUserClaims(ctx context.Context, user *domain.User, claims []store.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	stmt := fmt.Sprintf("DELETE FROM %s.user_claims WHERE user_id = ? AND type = ? AND value = ?", s.keyspace)
	for _, claim := range claims {
		batch.Query(stmt, gocql.UUID(user.ID), claim.Type, claim.Value)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return s.fail("remove user claims", err)
	}
	return nil
}

// ReplaceUserClaim swaps old for new in one batch so no state with
// neither claim is observable.
func (s *UserStore) ReplaceUserClaim(ctx context.Context, user *domain.User, oldClaim, newClaim store.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return store.InvalidArgument("user must not be nil")
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(fmt.Sprintf("DELETE FROM %s.user_claims WHERE user_id = ? AND type = ? AND value = ?", s.keyspace),
		gocql.UUID(user.ID), oldClaim.Type, oldClaim.Value)
	batch.Query(fmt.Sprintf("INSERT INTO %s.user_claims (user_id, type, value) VALUES (?, ?, ?)", s.keyspace),
		gocql.UUID(user.ID), newClaim.Type, newClaim.Value)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return s.fail("replace user claim", err)
	}
	return nil
}

func (s *UserStore) query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	q := s.session.Query(stmt, values...).WithContext(ctx)
	if s.tracer != nil {
		q = q.Trace(s.tracer)
	}
	return q
}

func (s *UserStore) bindUser(user *domain.User) []interface{} {
	return []interface{}{
		gocql.UUID(user.ID),
		user.Username,
		user.NormalizedUsername,
		user.Email,
		user.NormalizedEmail,
		user.EmailConfirmationTime,
		user.PasswordHash,
		user.SecurityStamp,
		user.Phone,
		user.TwoFactorEnabled,
		user.Lockout,
		user.Logins,
		user.Tokens,
		user.Roles,
	}
}

func (s *UserStore) scanUser(op string, q *gocql.Query) (*domain.User, error) {
	var u domain.User
	var id gocql.UUID
	err := q.Scan(
		&id,
		&u.Username,
		&u.NormalizedUsername,
		&u.Email,
		&u.NormalizedEmail,
		&u.EmailConfirmationTime,
		&u.PasswordHash,
		&u.SecurityStamp,
		&u.Phone,
		&u.TwoFactorEnabled,
		&u.Lockout,
		&u.Logins,
		&u.Tokens,
		&u.Roles,
	)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	u.ID = uuid.UUID(id)
	return &u, nil
}

func (s *UserStore) scanUsers(op string, q *gocql.Query) ([]*domain.User, error) {
	iter := q.Iter()

	var users []*domain.User
	for {
		var u domain.User
		var id gocql.UUID
		if !iter.Scan(
			&id,
			&u.Username,
			&u.NormalizedUsername,
			&u.Email,
			&u.NormalizedEmail,
			&u.EmailConfirmationTime,
			&u.PasswordHash,
			&u.SecurityStamp,
			&u.Phone,
			&u.TwoFactorEnabled,
			&u.Lockout,
			&u.Logins,
			&u.Tokens,
			&u.Roles,
		) {
			break
		}
		u.ID = uuid.UUID(id)
		users = append(users, &u)
	}
	if err := iter.Close(); err != nil {
		return nil, s.fail(op, err)
	}
	return users, nil
}

func (s *UserStore) fail(op string, err error) error {
	s.logger.Error("query execution failed", zap.String("op", op), zap.Error(err))
	return translate(err)
}
