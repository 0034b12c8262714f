package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

// Options carries everything needed to reach the cluster and provision the
// identity schema.
type Options struct {
	ContactPoints []string
	Port          int
	RetryCount    int
	Credentials   Credentials
	KeyspaceName  string

	// Replication is the keyspace replication map, e.g.
	// {"class": "SimpleStrategy", "replication_factor": "1"}.
	// A nil map falls back to SimpleStrategy with a factor of 1.
	Replication   map[string]string
	DurableWrites bool

	Query  QueryOptions
	Tables TableNames
}

// Credentials authenticate the session against the cluster.
type Credentials struct {
	Username string
	Password string
}

// QueryOptions tune statement execution.
type QueryOptions struct {
	// ConsistencyLevel is a gocql consistency name such as "quorum" or
	// "local_one". Empty means the driver default.
	ConsistencyLevel string
	PageSize         int
	TracingEnabled   bool
}

// TableNames resolves the physical table names. The names are settable so
// later schema steps and the stores never hard-code them.
type TableNames struct {
	Users string
	Roles string
}

// Defaults for the resolvable table names.
const (
	DefaultUsersTable = "users"
	DefaultRolesTable = "roles"
)

// UsersTable returns the configured users table name or its default.
func (t TableNames) UsersTable() string {
	if t.Users != "" {
		return t.Users
	}
	return DefaultUsersTable
}

// RolesTable returns the configured roles table name or its default.
func (t TableNames) RolesTable() string {
	if t.Roles != "" {
		return t.Roles
	}
	return DefaultRolesTable
}

// Load reads options from the environment. A .env file is loaded first
// when present (optional in production).
func Load() (*Options, error) {
	_ = godotenv.Load()

	opts := &Options{
		ContactPoints: splitEnv("CASSANDRA_CONTACT_POINTS", []string{"localhost"}),
		Port:          getIntEnv("CASSANDRA_PORT", 9042),
		RetryCount:    getIntEnv("CASSANDRA_RETRY_COUNT", 3),
		Credentials: Credentials{
			Username: getEnv("CASSANDRA_USERNAME", ""),
			Password: getEnv("CASSANDRA_PASSWORD", ""),
		},
		KeyspaceName:  getEnv("CASSANDRA_KEYSPACE", "identity"),
		DurableWrites: getBoolEnv("CASSANDRA_DURABLE_WRITES", true),
		Query: QueryOptions{
			ConsistencyLevel: getEnv("CASSANDRA_CONSISTENCY", "quorum"),
			PageSize:         getIntEnv("CASSANDRA_PAGE_SIZE", 0),
			TracingEnabled:   getBoolEnv("CASSANDRA_TRACING", false),
		},
		Tables: TableNames{
			Users: getEnv("CASSANDRA_USERS_TABLE", ""),
			Roles: getEnv("CASSANDRA_ROLES_TABLE", ""),
		},
	}

	if rf := getEnv("CASSANDRA_REPLICATION_FACTOR", ""); rf != "" {
		opts.Replication = map[string]string{
			"class":              "SimpleStrategy",
			"replication_factor": rf,
		}
	}

	if opts.KeyspaceName == "" {
		return nil, fmt.Errorf("keyspace name must not be empty")
	}

	return opts, nil
}

// Cluster builds the driver cluster configuration from the options.
func (o *Options) Cluster() (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(o.ContactPoints...)

	if o.Port != 0 {
		cluster.Port = o.Port
	}
	if o.RetryCount > 0 {
		cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: o.RetryCount}
	}
	if o.Credentials.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: o.Credentials.Username,
			Password: o.Credentials.Password,
		}
	}
	if o.Query.ConsistencyLevel != "" {
		consistency, err := gocql.ParseConsistencyWrapper(o.Query.ConsistencyLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid consistency level %q: %w", o.Query.ConsistencyLevel, err)
		}
		cluster.Consistency = consistency
	}
	if o.Query.PageSize > 0 {
		cluster.PageSize = o.Query.PageSize
	}

	return cluster, nil
}

// ReplicationSpec renders the keyspace replication map as a CQL literal.
func (o *Options) ReplicationSpec() string {
	replication := o.Replication
	if len(replication) == 0 {
		replication = map[string]string{
			"class":              "SimpleStrategy",
			"replication_factor": "1",
		}
	}

	keys := make([]string, 0, len(replication))
	for k := range replication {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("'%s': '%s'", k, replication[k]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	points := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			points = append(points, trimmed)
		}
	}
	if len(points) == 0 {
		return defaultValue
	}
	return points
}
