package cassandra

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyspaceStatement(t *testing.T) {
	stmt := keyspaceStatement("identity", "{'class': 'SimpleStrategy', 'replication_factor': '1'}", true)

	assert.Contains(t, stmt, "CREATE KEYSPACE IF NOT EXISTS identity")
	assert.Contains(t, stmt, "'class': 'SimpleStrategy'")
	assert.Contains(t, stmt, "DURABLE_WRITES = true")

	stmt = keyspaceStatement("identity", "{'class': 'SimpleStrategy', 'replication_factor': '1'}", false)
	assert.Contains(t, stmt, "DURABLE_WRITES = false")
}

func TestTypeStatements_DeclareAllSubRecords(t *testing.T) {
	statements := typeStatements("identity")
	require.Len(t, statements, 4)

	joined := strings.Join(statements, "\n")
	assert.Contains(t, joined, "identity.lockout_info")
	assert.Contains(t, joined, "identity.phone_info")
	assert.Contains(t, joined, "identity.login_info")
	assert.Contains(t, joined, "identity.token_info")
	for _, stmt := range statements {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
}

func TestUsersTableStatement_ReferencesTypes(t *testing.T) {
	stmt := usersTableStatement("identity", "accounts")

	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS identity.accounts")
	assert.Contains(t, stmt, "frozen<phone_info>")
	assert.Contains(t, stmt, "frozen<lockout_info>")
	assert.Contains(t, stmt, "list<frozen<login_info>>")
	assert.Contains(t, stmt, "list<frozen<token_info>>")
	assert.Contains(t, stmt, "roles set<text>")
}

func TestRolesTableStatement(t *testing.T) {
	stmt := rolesTableStatement("identity", "roles")
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS identity.roles")
	assert.Contains(t, stmt, "normalized_name text")
}

func TestAuxiliaryTableStatements_CompositeKeys(t *testing.T) {
	statements := auxiliaryTableStatements("identity")
	require.Len(t, statements, 2)

	assert.Contains(t, statements[0], "identity.user_claims")
	assert.Contains(t, statements[0], "PRIMARY KEY (user_id, type, value)")
	assert.Contains(t, statements[1], "identity.role_claims")
	assert.Contains(t, statements[1], "PRIMARY KEY (role_id, type, value)")
}

func TestViewStatements_NullGuardsAndNames(t *testing.T) {
	statements := viewStatements("identity", "users", "roles")
	joined := strings.Join(statements, "\n")

	assert.Contains(t, joined, "users_by_email")
	assert.Contains(t, joined, "users_by_username")
	assert.Contains(t, joined, "roles_by_name")
	assert.Contains(t, joined, "user_claims_by_type_and_value")
	assert.Contains(t, joined, "normalized_email IS NOT NULL")
	assert.Contains(t, joined, "normalized_username IS NOT NULL")
	assert.Contains(t, joined, "normalized_name IS NOT NULL")
	assert.Contains(t, joined, "PRIMARY KEY ((type, value), user_id)")
	assert.Contains(t, joined, "CREATE INDEX IF NOT EXISTS users_roles_idx ON identity.users (roles)")
}

// Every schema statement is guarded so a second initialization run is a
// no-op rather than an error.
func TestSchemaStatements_Idempotent(t *testing.T) {
	var all []string
	all = append(all, keyspaceStatement("identity", "{}", true))
	all = append(all, typeStatements("identity")...)
	all = append(all, usersTableStatement("identity", "users"))
	all = append(all, rolesTableStatement("identity", "roles"))
	all = append(all, auxiliaryTableStatements("identity")...)
	all = append(all, viewStatements("identity", "users", "roles")...)

	for _, stmt := range all {
		assert.Contains(t, stmt, "IF NOT EXISTS", stmt)
	}
}

func TestViewStatements_RespectResolvedTableNames(t *testing.T) {
	statements := viewStatements("identity", "accounts", "groups")
	joined := strings.Join(statements, "\n")

	assert.Contains(t, joined, "FROM identity.accounts")
	assert.Contains(t, joined, "FROM identity.groups")
	assert.NotContains(t, joined, "FROM identity.users")
}
