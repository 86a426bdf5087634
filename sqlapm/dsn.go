package sqlapm

import (
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// UnknownDatabase is reported when the database name cannot be determined.
const UnknownDatabase = "[db-name]"

// MySQLDatabase returns the database name of a go-sql-driver/mysql DSN
// ("user:pass@tcp(host:3306)/orders?parseTime=true").
func MySQLDatabase(dsn string) string {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil || cfg.DBName == "" {
		return UnknownDatabase
	}
	return cfg.DBName
}

// PostgresDatabase returns the database name of a PostgreSQL connection
// string, in URL or keyword/value form.
func PostgresDatabase(dsn string) string {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil || cfg.Database == "" {
		return UnknownDatabase
	}
	return cfg.Database
}

func databaseNameFunc(component string) func(string) string {
	switch component {
	case ComponentMySQL:
		return MySQLDatabase
	case ComponentPostgres:
		return PostgresDatabase
	default:
		return func(string) string { return UnknownDatabase }
	}
}
