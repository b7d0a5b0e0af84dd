package actions

import (
	"context"

	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

type ConnectionLoader interface {
	LoadConnection(connectionName string) (shared.ConnectionDetails, error)
}

type ConnectionGetterSetter interface {
	Get(key string, out interface{}) error
	Set(key string, val interface{}) error
	Delete(key string) error
}

type ConnectionLister interface {
	ConnectionLoader
	GetAllKeys() ([]string, error)
}

type ConnectionValidator interface {
	Parse() error
	GetMap(m map[string]string) map[string]string
	GetScheme() (string, error)
}

// StatusReader is satisfied by *pipeline.Controller and by a bare warehouse snapshot.
type StatusReader interface {
	Status(ctx context.Context, numLogEntries int) (pipeline.Status, error)
}
