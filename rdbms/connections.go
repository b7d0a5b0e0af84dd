package rdbms

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers driver "pgx"
	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// supportedConnectionTypes are the SQL warehouses we can open with OpenDbConnection.
var supportedConnectionTypes = map[string]struct{}{
	constants.ConnectionTypeSnowflake: {},
	constants.ConnectionTypePostgres:  {},
}

// IsSupportedConnection returns true if connectionType can be opened by OpenDbConnection.
func IsSupportedConnection(connectionType string) bool {
	_, ok := supportedConnectionTypes[connectionType]
	return ok
}

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch c.Type {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypePostgres:
		db, err = newPostgresConnection(log, shared.GetDsnConnectionDetails(&c))
	default:
		err = fmt.Errorf("unsupported database type, %q", c.Type)
	}
	return
}

// openAndPing opens driverName with dsn and tests the connection.
func openAndPing(driverName string, dsn string, dbType string) (*shared.HpConnection, error) {
	conn := &shared.HpConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{Dialect: dbType},
		DbType: dbType,
	}
	var err error
	conn.DbSql, err = sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %v connection", dbType)
	}
	if err = conn.DbSql.Ping(); err != nil {
		_ = conn.DbSql.Close()
		return nil, errors.Wrapf(err, "error connecting to %v", dbType)
	}
	return conn, nil
}
