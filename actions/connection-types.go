package actions

import (
	"sort"
	"strings"

	"github.com/relloyd/retail-loader/constants"
)

// warehouseConnectionTypes are the types accepted for the warehouse connection.
var warehouseConnectionTypes = map[string]struct{}{
	constants.ConnectionTypeSnowflake: {},
	constants.ConnectionTypePostgres:  {},
	constants.ConnectionTypeLocal:     {},
	constants.ConnectionTypeMock:      {},
}

// IsSupportedConnectionType returns true if a warehouse can be opened for connections of the given type.
func IsSupportedConnectionType(connectionType string) bool {
	_, ok := warehouseConnectionTypes[connectionType]
	return ok
}

// GetSupportedConnectionTypes returns a sorted CSV of the warehouse connection types.
func GetSupportedConnectionTypes() string {
	s := make([]string, 0, len(warehouseConnectionTypes))
	for k := range warehouseConnectionTypes {
		s = append(s, k)
	}
	sort.Strings(s)
	return strings.Join(s, ", ")
}
