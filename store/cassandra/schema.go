package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/avelasquez/identity-cassandra/config"
	"github.com/avelasquez/identity-cassandra/store"
)

// Initializer brings the cluster to the state the stores need: keyspace,
// user-defined types, base tables, claim tables, and the lookup views.
// Every statement is guarded with IF NOT EXISTS, so running it on each
// startup is safe.
type Initializer struct {
	session *gocql.Session
	opts    *config.Options
	logger  *zap.Logger
}

// NewInitializer builds a schema initializer over an open session.
func NewInitializer(session *gocql.Session, opts *config.Options, logger *zap.Logger) (*Initializer, error) {
	if session == nil {
		return nil, store.InvalidArgument("session must not be nil")
	}
	if opts == nil {
		return nil, store.InvalidArgument("options must not be nil")
	}
	if opts.KeyspaceName == "" {
		return nil, store.InvalidArgument("keyspace name must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initializer{session: session, opts: opts, logger: logger}, nil
}

// Initialize provisions all schema artifacts in dependency order:
// keyspace, then types, then base tables, then claim tables, then views.
// Later steps reference artifacts created by earlier ones, so the order
// is not negotiable.
func (i *Initializer) Initialize(ctx context.Context) error {
	if err := i.EnsureKeyspace(ctx); err != nil {
		return err
	}
	if err := i.EnsureTypes(ctx); err != nil {
		return err
	}
	if err := i.EnsureTables(ctx); err != nil {
		return err
	}
	if err := i.EnsureAuxiliaryTables(ctx); err != nil {
		return err
	}
	return i.EnsureViews(ctx)
}

// EnsureKeyspace switches to the configured keyspace, creating it first
// when the switch fails because it does not exist. Failure to switch
// after creation is surfaced to the caller.
func (i *Initializer) EnsureKeyspace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	use := fmt.Sprintf("USE %s", i.opts.KeyspaceName)
	if err := i.session.Query(use).WithContext(ctx).Exec(); err == nil {
		return nil
	}

	i.logger.Info("keyspace not available, creating",
		zap.String("keyspace", i.opts.KeyspaceName))

	create := keyspaceStatement(i.opts.KeyspaceName, i.opts.ReplicationSpec(), i.opts.DurableWrites)
	if err := i.session.Query(create).WithContext(ctx).Exec(); err != nil {
		i.logger.Error("keyspace creation failed", zap.Error(err))
		return translate(err)
	}
	if err := i.session.Query(use).WithContext(ctx).Exec(); err != nil {
		i.logger.Error("keyspace switch failed after creation", zap.Error(err))
		return translate(err)
	}
	return nil
}

// EnsureTypes declares the sub-record shapes. Must run before table
// creation since the tables reference these types.
func (i *Initializer) EnsureTypes(ctx context.Context) error {
	return i.execAll(ctx, typeStatements(i.opts.KeyspaceName))
}

// EnsureTables creates the users and roles tables. The resolved physical
// names come from the options so nothing downstream hard-codes them.
func (i *Initializer) EnsureTables(ctx context.Context) error {
	ks := i.opts.KeyspaceName
	return i.execAll(ctx, []string{
		usersTableStatement(ks, i.opts.Tables.UsersTable()),
		rolesTableStatement(ks, i.opts.Tables.RolesTable()),
	})
}

// EnsureAuxiliaryTables creates the per-type claim tables. The composite
// primary key (owner, type, value) makes inserts naturally deduplicating.
func (i *Initializer) EnsureAuxiliaryTables(ctx context.Context) error {
	return i.execAll(ctx, auxiliaryTableStatements(i.opts.KeyspaceName))
}

// EnsureViews creates the denormalized lookup views and the membership
// index used for roles CONTAINS queries.
func (i *Initializer) EnsureViews(ctx context.Context) error {
	ks := i.opts.KeyspaceName
	return i.execAll(ctx, viewStatements(ks, i.opts.Tables.UsersTable(), i.opts.Tables.RolesTable()))
}

func (i *Initializer) execAll(ctx context.Context, statements []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, stmt := range statements {
		if err := i.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			i.logger.Error("schema statement failed",
				zap.String("statement", stmt),
				zap.Error(err))
			return translate(err)
		}
	}
	return nil
}

func keyspaceStatement(keyspace, replicationSpec string, durableWrites bool) string {
	return fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s AND DURABLE_WRITES = %t",
		keyspace, replicationSpec, durableWrites)
}

func typeStatements(keyspace string) []string {
	return []string{
		fmt.Sprintf("CREATE TYPE IF NOT EXISTS %s.lockout_info (end_date timestamp, enabled boolean, access_failed_count int)", keyspace),
		fmt.Sprintf("CREATE TYPE IF NOT EXISTS %s.phone_info (number text, confirmation_time timestamp)", keyspace),
		fmt.Sprintf("CREATE TYPE IF NOT EXISTS %s.login_info (login_provider text, provider_key text, provider_display_name text)", keyspace),
		fmt.Sprintf("CREATE TYPE IF NOT EXISTS %s.token_info (login_provider text, name text, value text)", keyspace),
	}
}

func usersTableStatement(keyspace, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
		id uuid PRIMARY KEY,
		username text,
		normalized_username text,
		email text,
		normalized_email text,
		email_confirmation_time timestamp,
		password_hash text,
		security_stamp text,
		phone frozen<phone_info>,
		two_factor_enabled boolean,
		lockout frozen<lockout_info>,
		logins list<frozen<login_info>>,
		tokens list<frozen<token_info>>,
		roles set<text>)`, keyspace, table)
}

func rolesTableStatement(keyspace, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
		id uuid PRIMARY KEY,
		name text,
		normalized_name text)`, keyspace, table)
}

func auxiliaryTableStatements(keyspace string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.user_claims (
		user_id uuid,
		type text,
		value text,
		PRIMARY KEY (user_id, type, value))`, keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.role_claims (
		role_id uuid,
		type text,
		value text,
		PRIMARY KEY (role_id, type, value))`, keyspace),
	}
}

func viewStatements(keyspace, usersTable, rolesTable string) []string {
	return []string{
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s.users_by_email AS"+
			" SELECT * FROM %s.%s"+
			" WHERE normalized_email IS NOT NULL AND id IS NOT NULL"+
			" PRIMARY KEY (normalized_email, id)", keyspace, keyspace, usersTable),
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s.users_by_username AS"+
			" SELECT * FROM %s.%s"+
			" WHERE normalized_username IS NOT NULL AND id IS NOT NULL"+
			" PRIMARY KEY (normalized_username, id)", keyspace, keyspace, usersTable),
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s.roles_by_name AS"+
			" SELECT * FROM %s.%s"+
			" WHERE normalized_name IS NOT NULL AND id IS NOT NULL"+
			" PRIMARY KEY (normalized_name, id)", keyspace, keyspace, rolesTable),
		fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s.user_claims_by_type_and_value AS"+
			" SELECT * FROM %s.user_claims"+
			" WHERE type IS NOT NULL AND value IS NOT NULL AND user_id IS NOT NULL"+
			" PRIMARY KEY ((type, value), user_id)", keyspace, keyspace),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_roles_idx ON %s.%s (roles)", usersTable, keyspace, usersTable),
	}
}
