package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelasquez/identity-cassandra/config"
	"github.com/avelasquez/identity-cassandra/domain"
	"github.com/avelasquez/identity-cassandra/store"
)

const roleColumns = "id, name, normalized_name"

// RoleStore persists roles. Role membership is denormalized onto each
// user row, so renaming or deleting a role rewrites every holding user's
// membership set together with the role row in a single logged batch.
type RoleStore struct {
	session    *gocql.Session
	opts       *config.Options
	logger     *zap.Logger
	tracer     gocql.Tracer
	keyspace   string
	usersTable string
	rolesTable string
}

var _ store.RoleStore = (*RoleStore)(nil)

// NewRoleStore builds a role store over an open session.
func NewRoleStore(session *gocql.Session, opts *config.Options, logger *zap.Logger) (*RoleStore, error) {
	if session == nil {
		return nil, store.InvalidArgument("session must not be nil")
	}
	if opts == nil {
		return nil, store.InvalidArgument("options must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RoleStore{
		session:    session,
		opts:       opts,
		logger:     logger,
		keyspace:   opts.KeyspaceName,
		usersTable: opts.Tables.UsersTable(),
		rolesTable: opts.Tables.RolesTable(),
	}
	if opts.Query.TracingEnabled {
		s.tracer = gocql.NewTraceWriter(session, zap.NewStdLog(logger.Named("trace")).Writer())
	}
	return s, nil
}

// CreateRole inserts a new role row.
func (s *RoleStore) CreateRole(ctx context.Context, role *domain.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == nil {
		return store.InvalidArgument("role must not be nil")
	}

	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (?, ?, ?)", s.keyspace, s.rolesTable, roleColumns)
	if err := s.query(ctx, stmt, gocql.UUID(role.ID), role.Name, role.NormalizedName).Exec(); err != nil {
		return s.fail("create role", err)
	}
	return nil
}

// UpdateRole renames the role everywhere. The previous normalized name
// cannot be edited in place inside each user's membership set, so the
// update removes the old name and adds the new one per affected user,
// then rewrites the role row, all in one atomic batch. If the affected
// user list cannot be fetched, no batch is constructed. An update that
// keeps the normalized name touches only the role row.
//
// The affected users are the ones visible through the membership index at
// the time of the call; a write racing with the rename can be missed.
// This is a known consistency gap inherited from the denormalized layout.
func (s *RoleStore) UpdateRole(ctx context.Context, role *domain.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == nil {
		return store.InvalidArgument("role must not be nil")
	}

	existing, err := s.FindRoleByID(ctx, role.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return store.InvalidOperation(fmt.Sprintf("role %s does not exist", role.ID), nil)
	}

	var affected []gocql.UUID
	if membershipRewriteNeeded(existing.NormalizedName, role.NormalizedName) {
		affected, err = s.usersHolding(ctx, existing.NormalizedName)
		if err != nil {
			return err
		}
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	removeStmt := fmt.Sprintf("UPDATE %s.%s SET roles = roles - ? WHERE id = ?", s.keyspace, s.usersTable)
	addStmt := fmt.Sprintf("UPDATE %s.%s SET roles = roles + ? WHERE id = ?", s.keyspace, s.usersTable)
	for _, id := range affected {
		batch.Query(removeStmt, []string{existing.NormalizedName}, id)
		batch.Query(addStmt, []string{role.NormalizedName}, id)
	}
	batch.Query(fmt.Sprintf("UPDATE %s.%s SET name = ?, normalized_name = ? WHERE id = ?", s.keyspace, s.rolesTable),
		role.Name, role.NormalizedName, gocql.UUID(role.ID))

	if err := s.session.ExecuteBatch(batch); err != nil {
		return s.fail("update role", err)
	}
	return nil
}

// membershipRewriteNeeded reports whether a role update has to rewrite the
// per-user membership sets. When the normalized name is unchanged, removing
// and re-adding it in one batch would land at the same write timestamp, and
// Cassandra breaks that tie in favor of the delete, silently dropping the
// membership. A display-name-only update leaves the sets alone.
func membershipRewriteNeeded(oldName, newName string) bool {
	return oldName != newName
}

// DeleteRole removes the role row and retracts the role's normalized name
// from every holding user's membership set, atomically. A role with zero
// holders deletes with a batch containing only the role row deletion.
func (s *RoleStore) DeleteRole(ctx context.Context, role *domain.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == nil {
		return store.InvalidArgument("role must not be nil")
	}

	affected, err := s.usersHolding(ctx, role.NormalizedName)
	if err != nil {
		return err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	removeStmt := fmt.Sprintf("UPDATE %s.%s SET roles = roles - ? WHERE id = ?", s.keyspace, s.usersTable)
	for _, id := range affected {
		batch.Query(removeStmt, []string{role.NormalizedName}, id)
	}
	batch.Query(fmt.Sprintf("DELETE FROM %s.%s WHERE id = ?", s.keyspace, s.rolesTable), gocql.UUID(role.ID))

	if err := s.session.ExecuteBatch(batch); err != nil {
		return s.fail("delete role", err)
	}
	return nil
}

// FindRoleByID looks up a role by primary key. Returns (nil, nil) when no
// role matches.
func (s *RoleStore) FindRoleByID(ctx context.Context, id uuid.UUID) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.%s WHERE id = ?", roleColumns, s.keyspace, s.rolesTable)
	return s.scanRole("find role by id", s.query(ctx, stmt, gocql.UUID(id)))
}

// FindRoleByName looks up a role through the roles_by_name view.
func (s *RoleStore) FindRoleByName(ctx context.Context, normalizedName string) (*domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if normalizedName == "" {
		return nil, store.InvalidArgument("normalized role name must not be empty")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s.roles_by_name WHERE normalized_name = ? LIMIT 1",
		roleColumns, s.keyspace)
	return s.scanRole("find role by name", s.query(ctx, stmt, normalizedName))
}

// RoleClaims returns the claims held in the role's companion collection.
func (s *RoleStore) RoleClaims(ctx context.Context, role *domain.Role) ([]store.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if role == nil {
		return nil, store.InvalidArgument("role must not be nil")
	}

	stmt := fmt.Sprintf("SELECT type, value FROM %s.role_claims WHERE role_id = ?", s.keyspace)
	iter := s.query(ctx, stmt, gocql.UUID(role.ID)).Iter()

	var claims []store.Claim
	var claim store.Claim
	for iter.Scan(&claim.Type, &claim.Value) {
		claims = append(claims, claim)
	}
	if err := iter.Close(); err != nil {
		return nil, s.fail("get role claims", err)
	}
	return claims, nil
}

// AddRoleClaim inserts a claim for the role. The composite key of the
// claim table deduplicates re-added claims.
func (s *RoleStore) AddRoleClaim(ctx context.Context, role *domain.Role, claim store.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == nil {
		return store.InvalidArgument("role must not be nil")
	}

	stmt := fmt.Sprintf("INSERT INTO %s.role_claims (role_id, type, value) VALUES (?, ?, ?)", s.keyspace)
	if err := s.query(ctx, stmt, gocql.UUID(role.ID), claim.Type, claim.Value).Exec(); err != nil {
		return s.fail("add role claim", err)
	}
	return nil
}

// RemoveRoleClaim deletes a claim from the role.
func (s *RoleStore) RemoveRoleClaim(ctx context.Context, role *domain.Role, claim store.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == nil {
		return store.InvalidArgument("role must not be nil")
	}

	stmt := fmt.Sprintf("DELETE FROM %s.role_claims WHERE role_id = ? AND type = ? AND value = ?", s.keyspace)
	if err := s.query(ctx, stmt, gocql.UUID(role.ID), claim.Type, claim.Value).Exec(); err != nil {
		return s.fail("remove role claim", err)
	}
	return nil
}

// usersHolding returns the ids of users whose membership set contains the
// normalized role name. Errors fail closed: the caller must not construct
// a partial batch.
func (s *RoleStore) usersHolding(ctx context.Context, normalizedName string) ([]gocql.UUID, error) {
	if normalizedName == "" {
		return nil, nil
	}

	stmt := fmt.Sprintf("SELECT id FROM %s.%s WHERE roles CONTAINS ?", s.keyspace, s.usersTable)
	iter := s.query(ctx, stmt, normalizedName).Iter()

	var ids []gocql.UUID
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, s.fail("find role holders", err)
	}
	return ids, nil
}

func (s *RoleStore) query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	q := s.session.Query(stmt, values...).WithContext(ctx)
	if s.tracer != nil {
		q = q.Trace(s.tracer)
	}
	return q
}

func (s *RoleStore) scanRole(op string, q *gocql.Query) (*domain.Role, error) {
	var r domain.Role
	var id gocql.UUID
	err := q.Scan(&id, &r.Name, &r.NormalizedName)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	r.ID = uuid.UUID(id)
	return &r, nil
}

func (s *RoleStore) fail(op string, err error) error {
	s.logger.Error("query execution failed", zap.String("op", op), zap.Error(err))
	return translate(err)
}
