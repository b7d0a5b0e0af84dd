package actions

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/config"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/rdbms"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

const connectionTestTimeout = 30 * time.Second

type ConnectionConfig struct {
	ConfigFile  ConnectionGetterSetter
	LogicalName string
	Type        string
	ConnDetails ConnectionValidator // one of SnowflakeConnection, PostgresConnection, LocalConnection; nil for mock
	Force       bool
	Out         io.Writer
}

func RunConnectionAdd(cfg *ConnectionConfig) error {
	connection := shared.ConnectionDetails{
		LogicalName: cfg.LogicalName,
		Type:        cfg.Type,
		Data:        make(map[string]string),
	}
	if err := helper.ValidateStructIsPopulated(connection); err != nil { // if the basics were not supplied...
		return err
	}
	if strings.ContainsAny(cfg.LogicalName, ". ") {
		return fmt.Errorf("connection name cannot contain periods or spaces")
	}
	if !IsSupportedConnectionType(cfg.Type) {
		return fmt.Errorf("unsupported connection type %q, please use one of: %v", cfg.Type, GetSupportedConnectionTypes())
	}
	if cfg.ConnDetails != nil {
		if err := cfg.ConnDetails.Parse(); err != nil {
			return errors.Wrap(err, "unable to create connection")
		}
		scheme, err := cfg.ConnDetails.GetScheme()
		if err != nil {
			return err
		}
		if scheme != cfg.Type {
			return fmt.Errorf("connection details of type %q cannot be saved as type %q", scheme, cfg.Type)
		}
		cfg.ConnDetails.GetMap(connection.Data)
	}
	// Check for an existing saved connection.
	tmpConn := shared.ConnectionDetails{}
	err := cfg.ConfigFile.Get(cfg.LogicalName, &tmpConn)
	if err != nil { // if there is an error finding the connection...
		if !errors.As(err, &config.KeyNotFoundError{}) { // if the error is real...
			return err
		}
	} else if !cfg.Force { // else the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection exists, use force to update the connection or remove it first")
	}
	err = cfg.ConfigFile.Set(cfg.LogicalName, map[string]interface{}{
		"type":        connection.Type,
		"logicalName": connection.LogicalName,
		"data":        connection.Data,
	})
	if err != nil {
		return fmt.Errorf("error writing connections config file after adding: %v", err)
	}
	_, _ = fmt.Fprintf(outputOrStdout(cfg.Out), "Connection %q added\n", cfg.LogicalName)
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if cfg.ConfigFile == nil || cfg.LogicalName == "" {
		return fmt.Errorf("please supply values for config-file, connection-name")
	}
	err := cfg.ConfigFile.Delete(cfg.LogicalName)
	if err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	_, _ = fmt.Fprintf(outputOrStdout(cfg.Out), "Connection %q removed\n", cfg.LogicalName)
	return nil
}

// RunConnectionList prints every connection with passwords redacted.
func RunConnectionList(connections ConnectionLister, out io.Writer) error {
	keys, err := connections.GetAllKeys()
	if err != nil {
		return err
	}
	w := outputOrStdout(out)
	for _, k := range keys { // for each connection name...
		conn, err := connections.LoadConnection(k)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%v:\n%v\n", k, conn)
	}
	return nil
}

type ConnectionTestConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	ConnectionName   string           `errorTxt:"connection name" mandatory:"yes"`
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

// RunConnectionTest opens the connection, pings it and prints the server version.
func RunConnectionTest(cfg *ConnectionTestConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	out := outputOrStdout(cfg.Out)
	c, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectionTestTimeout)
	defer cancel()
	if !rdbms.IsSupportedConnection(c.Type) { // if this is a file or memory warehouse...
		w, err := OpenWarehouse(log, c, constants.DefaultPipelineName)
		if err != nil {
			return err
		}
		defer w.Close()
		if err = w.Ping(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Connection %q (%v) is OK\n%v\n", cfg.ConnectionName, c.Type, c)
		return nil
	}
	db, err := rdbms.OpenDbConnection(log, c)
	if err != nil {
		return err
	}
	defer db.Close()
	if err = db.PingContext(ctx); err != nil {
		return errors.Wrapf(err, "error pinging connection %q", cfg.ConnectionName)
	}
	version, err := serverVersion(ctx, db)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Connection %q (%v) is OK\nServer version: %v\n", cfg.ConnectionName, c.Type, version)
	return nil
}

func serverVersion(ctx context.Context, db shared.Connector) (string, error) {
	stmt := "select version()"
	if db.GetType() == constants.ConnectionTypeSnowflake {
		stmt = "select current_version()"
	}
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return "", errors.Wrap(err, "error fetching server version")
	}
	defer func() {
		_ = rows.Close()
	}()
	var v string
	if rows.Next() {
		if err = rows.Scan(&v); err != nil {
			return "", err
		}
	}
	return v, rows.Err()
}
