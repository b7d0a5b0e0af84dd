package rdbms

import (
	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// newPostgresConnection opens the Postgres database specified by the URL style DSN in d
// using the pgx database/sql driver.
func newPostgresConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	scheme, err := d.GetScheme()
	if err != nil {
		return nil, err
	}
	if scheme != "postgres" && scheme != "postgresql" && scheme != "pgx" {
		return nil, errors.Errorf("unsupported Postgres DSN scheme %q", scheme)
	}
	log.Info("Opening database connection: ", d)
	conn, err := openAndPing("pgx", d.Dsn, constants.ConnectionTypePostgres)
	if err != nil {
		return nil, err
	}
	log.Info("Successful database connection to Postgres.")
	return conn, nil
}
