//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQLContainer is a MySQL server holding one test database.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	db        *sql.DB
	dsn       string
}

// MySQLConfig configures NewMySQLContainer.
type MySQLConfig struct {
	ImageTag string // default "8.0"
	Database string // default "livemon_test"
	Username string // default "livemon"
	Password string // default "livemon"
}

func (c *MySQLConfig) withDefaults() MySQLConfig {
	out := MySQLConfig{ImageTag: "8.0", Database: "livemon_test", Username: "livemon", Password: "livemon"}
	if c == nil {
		return out
	}
	if c.ImageTag != "" {
		out.ImageTag = c.ImageTag
	}
	if c.Database != "" {
		out.Database = c.Database
	}
	if c.Username != "" {
		out.Username = c.Username
	}
	if c.Password != "" {
		out.Password = c.Password
	}
	return out
}

// NewMySQLContainer starts MySQL and waits until the database answers. A nil
// config uses the defaults.
func NewMySQLContainer(ctx context.Context, cfg *MySQLConfig) (*MySQLContainer, error) {
	c := cfg.withDefaults()
	ctr, err := mysql.Run(ctx, "mysql:"+c.ImageTag,
		mysql.WithDatabase(c.Database),
		mysql.WithUsername(c.Username),
		mysql.WithPassword(c.Password))
	if err != nil {
		return nil, fmt.Errorf("starting mysql container: %w", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "multiStatements=true")
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return nil, fmt.Errorf("resolving mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := waitReady(ctx, db.PingContext); err != nil {
		_ = db.Close()
		_ = ctr.Terminate(context.Background())
		return nil, fmt.Errorf("mysql not ready: %w", err)
	}
	return &MySQLContainer{container: ctr, db: db, dsn: dsn}, nil
}

// DSN returns the go-sql-driver DSN of the test database.
func (c *MySQLContainer) DSN() string { return c.dsn }

// Reset empties tables with foreign key checks disabled.
func (c *MySQLContainer) Reset(ctx context.Context, tables []string) error {
	stmts, err := truncateStatements(tables)
	if err != nil {
		return err
	}
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Terminate closes the connection pool and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("terminating container: %w", err)
	}
	return nil
}
