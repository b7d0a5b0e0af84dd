package config

import (
	"fmt"

	"github.com/relloyd/retail-loader/rdbms/shared"
)

// GetConnectionType returns the type saved against connectionName.
// Return an error if the key doesn't exist.
func (c *File) GetConnectionType(connectionName string) (connectionType string, err error) {
	d, err := c.GetConnectionDetails(connectionName)
	if err != nil {
		return "", err
	}
	return d.Type, nil
}

// GetConnectionDetails fetches generic connection details from the File c using the connectionName to do the lookup.
// If the connection is not found the an error is produced.
func (c *File) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	genericConn := &shared.ConnectionDetails{}
	if err := c.Get(connectionName, genericConn); err != nil {
		return nil, fmt.Errorf("connection %q is not configured: use 'config conn add' to create it: %w", connectionName, err)
	}
	if genericConn.Type == "" {
		return nil, fmt.Errorf("unknown type for connection %q", connectionName)
	}
	if genericConn.LogicalName == "" {
		genericConn.LogicalName = connectionName
	}
	return genericConn, nil
}

// LoadConnection returns a copy of the saved connection details.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d, err := c.GetConnectionDetails(connectionName)
	if err != nil {
		return shared.ConnectionDetails{}, err
	}
	return *d, nil
}
