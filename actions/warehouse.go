package actions

import (
	"fmt"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms"
	"github.com/relloyd/retail-loader/rdbms/shared"
	"github.com/relloyd/retail-loader/warehouse"
)

// OpenWarehouse returns the warehouse for connection c.
// SQL connections are opened and pinged here.
func OpenWarehouse(log logger.Logger, c shared.ConnectionDetails, pipelineName string) (warehouse.Warehouse, error) {
	switch c.Type {
	case constants.ConnectionTypeSnowflake, constants.ConnectionTypePostgres:
		conn, err := rdbms.OpenDbConnection(log, c)
		if err != nil {
			return nil, err
		}
		w, err := warehouse.NewSQLWarehouse(warehouse.SQLConfig{Log: log, Conn: conn, PipelineName: pipelineName})
		if err != nil {
			conn.Close()
			return nil, err
		}
		return w, nil
	case constants.ConnectionTypeLocal:
		p := c.Data[localConnectionKeyPath]
		if p == "" {
			return nil, fmt.Errorf("local connection %q has no %v", c.LogicalName, localConnectionKeyPath)
		}
		return warehouse.NewMemoryWarehouse(warehouse.MemoryConfig{Log: log, PipelineName: pipelineName, Path: p})
	case constants.ConnectionTypeMock:
		return warehouse.NewMemoryWarehouse(warehouse.MemoryConfig{Log: log, PipelineName: pipelineName})
	}
	return nil, fmt.Errorf("unsupported warehouse connection type %q, please use one of: %v", c.Type, GetSupportedConnectionTypes())
}
