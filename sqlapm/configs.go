package sqlapm

import "time"

// Pool defaults applied by Cluster when a PoolConfig field is zero.
const (
	DefaultMaxOpenConns    = 50
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = time.Minute
)

// PoolConfig holds the connection pool settings applied to every pool a
// Cluster opens.
type PoolConfig struct {
	// MaxOpenConns controls the maximum number of open connections per pool.
	// If set to 0, DefaultMaxOpenConns is used.
	MaxOpenConns int `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`

	// MaxIdleConns controls the maximum number of idle connections per pool.
	// If set to 0, DefaultMaxIdleConns is used.
	MaxIdleConns int `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`

	// ConnMaxLifetime is the maximum amount of time a connection may be
	// reused. If set to 0, DefaultConnMaxLifetime is used.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME"`
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = DefaultMaxOpenConns
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = DefaultMaxIdleConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	return p
}
