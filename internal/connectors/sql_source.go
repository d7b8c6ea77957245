package connectors

import (
	"context"
	"database/sql"
	"fmt"

	"go-tpm/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Tables the lookup is allowed to touch, keyed by entity type. The
// entity type never reaches the SQL text unless it maps here.
var entityTables = map[string]string{
	"promotion":           "promotions",
	"budget":              "budgets",
	"contract":            "contracts",
	"claim":               "claims",
	"market_intelligence": "market_intelligence",
	"settlement":          "settlements",
}

// SQLEntitySource reads entity names from an external SQL database
// (postgres or mysql).
type SQLEntitySource struct {
	dbType string
	db     *sql.DB
}

// NewEntitySource builds the configured entity source. With no driver
// configured it returns the noop source.
func NewEntitySource(cfg *config.Config) (EntitySource, error) {
	if cfg.EntitySourceDriver == "" {
		return NoopEntitySource{}, nil
	}

	driver := cfg.EntitySourceDriver
	if driver == "postgres" || driver == "postgresql" {
		driver = "postgres"
	} else if driver != "mysql" {
		return nil, fmt.Errorf("unsupported entity source driver: %s", cfg.EntitySourceDriver)
	}

	db, err := sql.Open(driver, cfg.EntitySourceDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity source connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &SQLEntitySource{dbType: driver, db: db}, nil
}

func (c *SQLEntitySource) Enabled() bool { return true }

func (c *SQLEntitySource) LookupName(ctx context.Context, entityType, entityID string) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("unknown entity type: %s", entityType)
	}

	var query string
	if c.dbType == "postgres" {
		query = fmt.Sprintf("SELECT name FROM %s WHERE id = $1", table)
	} else {
		query = fmt.Sprintf("SELECT name FROM %s WHERE id = ?", table)
	}

	var name string
	err := c.db.QueryRowContext(ctx, query, entityID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("entity lookup failed: %w", err)
	}
	return name, nil
}

func (c *SQLEntitySource) Close() error {
	return c.db.Close()
}
