package actions

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/rdbms"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// localConnectionKeyPath is the ConnectionDetails.Data key of a local warehouse's snapshot file.
const localConnectionKeyPath = "path"

// SnowflakeConnection validates a snowflake:// DSN.
type SnowflakeConnection struct {
	Dsn string
}

func (s *SnowflakeConnection) Parse() error {
	if s.Dsn == "" {
		return errors.New("DSN not found")
	}
	_, err := rdbms.SnowflakeParseDSN(s.Dsn)
	return err
}

func (s *SnowflakeConnection) GetScheme() (string, error) {
	return constants.ConnectionTypeSnowflake, nil
}

func (s *SnowflakeConnection) GetMap(m map[string]string) map[string]string {
	return shared.DsnConnectionDetails{Dsn: s.Dsn}.GetMap(m)
}

// PostgresConnection validates a postgres:// DSN.
type PostgresConnection struct {
	shared.DsnConnectionDetails
}

func (p *PostgresConnection) Parse() error {
	if err := p.DsnConnectionDetails.Parse(); err != nil {
		return err
	}
	switch p.OriginalScheme {
	case "postgres", "postgresql", "pgx":
		return nil
	}
	return fmt.Errorf("unsupported Postgres DSN scheme %q", p.OriginalScheme)
}

func (p *PostgresConnection) GetScheme() (string, error) {
	return constants.ConnectionTypePostgres, nil
}

// LocalConnection is a warehouse kept in a JSON snapshot file.
type LocalConnection struct {
	Path string
}

func (l *LocalConnection) Parse() error {
	if l.Path == "" {
		return errors.New("path to the local warehouse file not found")
	}
	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return errors.Wrap(err, "invalid local warehouse path")
	}
	l.Path = abs
	return nil
}

func (l *LocalConnection) GetScheme() (string, error) {
	return constants.ConnectionTypeLocal, nil
}

func (l *LocalConnection) GetMap(m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[localConnectionKeyPath] = l.Path
	return m
}

// connectionValidator returns the validator for the data saved in c, or nil for mock connections.
func connectionValidator(c shared.ConnectionDetails) ConnectionValidator {
	switch c.Type {
	case constants.ConnectionTypeSnowflake:
		return &SnowflakeConnection{Dsn: c.Data[shared.DefaultDsnConnectionKeyNames.Dsn]}
	case constants.ConnectionTypePostgres:
		p := &PostgresConnection{}
		p.Dsn = c.Data[shared.DefaultDsnConnectionKeyNames.Dsn]
		return p
	case constants.ConnectionTypeLocal:
		return &LocalConnection{Path: c.Data[localConnectionKeyPath]}
	}
	return nil
}

// NewConnectionDetails validates dsn and returns generic details for a warehouse connection.
// For local connections dsn is the snapshot file path. Mock connections ignore it.
func NewConnectionDetails(name string, connectionType string, dsn string) (shared.ConnectionDetails, error) {
	if !IsSupportedConnectionType(connectionType) {
		return shared.ConnectionDetails{}, fmt.Errorf("unsupported connection type %q, please use one of: %v", connectionType, GetSupportedConnectionTypes())
	}
	c := shared.ConnectionDetails{Type: connectionType, LogicalName: name, Data: make(map[string]string)}
	key := shared.DefaultDsnConnectionKeyNames.Dsn
	if connectionType == constants.ConnectionTypeLocal {
		key = localConnectionKeyPath
	}
	c.Data[key] = dsn
	v := connectionValidator(c)
	if v == nil {
		c.Data = make(map[string]string)
		return c, nil
	}
	if err := v.Parse(); err != nil {
		return shared.ConnectionDetails{}, errors.Wrapf(err, "invalid %v connection %q", connectionType, name)
	}
	c.Data = v.GetMap(make(map[string]string))
	return c, nil
}
