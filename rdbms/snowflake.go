package rdbms

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms/shared"
	sf "github.com/snowflakedb/gosnowflake"
)

// SnowflakeEnvVarNames are read by SnowflakeConnectionDetailsFromEnv.
var SnowflakeEnvVarNames = struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}{
	Account:   "SNOWFLAKE_ACCOUNT",
	User:      "SNOWFLAKE_USER",
	Password:  "SNOWFLAKE_PASSWORD",
	Warehouse: "SNOWFLAKE_WAREHOUSE",
	Database:  "SNOWFLAKE_DATABASE",
	Schema:    "SNOWFLAKE_SCHEMA",
	Role:      "SNOWFLAKE_ROLE",
}

type SnowflakeConnectionDetails struct {
	Account   string `errorTxt:"Snowflake account" mandatory:"yes"`
	DBName    string `errorTxt:"Snowflake db name" mandatory:"yes"`
	Schema    string `errorTxt:"Snowflake schema" mandatory:"yes"`
	User      string `errorTxt:"Snowflake username" mandatory:"yes"`
	Password  string `errorTxt:"Snowflake password" mandatory:"yes"`
	Warehouse string `errorTxt:"Snowflake warehouse"`
	RoleName  string `errorTxt:"Snowflake role name"`
}

func (d SnowflakeConnectionDetails) String() string {
	return fmt.Sprintf("%v:%v@%v/%v?schema=%v&warehouse=%v&role=%v",
		d.User,
		"xxxxxxx",
		d.Account,
		d.DBName,
		d.Schema,
		d.Warehouse,
		d.RoleName,
	)
}

// SnowflakeConnectionDetailsFromEnv reads the SNOWFLAKE_* variables.
// Warehouse, database, schema and role fall back to the defaults in constants.
// An error lists every mandatory variable that is missing.
func SnowflakeConnectionDetailsFromEnv() (*SnowflakeConnectionDetails, error) {
	n := SnowflakeEnvVarNames
	d := &SnowflakeConnectionDetails{
		Account:   helper.ReadValueFromEnvWithDefault(n.Account, ""),
		User:      helper.ReadValueFromEnvWithDefault(n.User, ""),
		Password:  helper.ReadValueFromEnvWithDefault(n.Password, ""),
		Warehouse: helper.ReadValueFromEnvWithDefault(n.Warehouse, constants.SnowflakeDefaultWarehouse),
		DBName:    helper.ReadValueFromEnvWithDefault(n.Database, constants.SnowflakeDefaultDatabase),
		Schema:    helper.ReadValueFromEnvWithDefault(n.Schema, constants.SnowflakeDefaultSchema),
		RoleName:  helper.ReadValueFromEnvWithDefault(n.Role, constants.SnowflakeDefaultRole),
	}
	missing := make([]string, 0)
	for k, v := range map[string]string{n.Account: d.Account, n.User: d.User, n.Password: d.Password} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing Snowflake environment variables: %v", strings.Join(missing, ", "))
	}
	return d, nil
}

// newSnowflakeConnection opens the Snowflake database connection specified in d.
func newSnowflakeConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	if _, err := SnowflakeParseDSN(d.Dsn); err != nil {
		return nil, err
	}
	dsn := strings.TrimPrefix(d.Dsn, "snowflake://")
	conn, err := openAndPing("snowflake", dsn, constants.ConnectionTypeSnowflake)
	if err != nil {
		return nil, err
	}
	log.Info("Successful database connection to Snowflake.")
	return conn, nil
}

// SnowflakeGetDSN constructs a DSN based on SnowflakeConnectionDetails.
// The prefix 'snowflake://' is added to the DSN.
func SnowflakeGetDSN(c *SnowflakeConnectionDetails) (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		Database:  c.DBName,
		Schema:    c.Schema,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.RoleName,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", err
	}
	// Prefix with 'snowflake://'
	re := regexp.MustCompile("^snowflake://")
	if !re.MatchString(dsn) { // if the prefix is missing...
		dsn = fmt.Sprintf("snowflake://%v", dsn)
	}
	return dsn, err
}

// SnowflakeParseDSN converts a Snowflake DSN into native connection details.
// The prefix 'snowflake://' is removed from the DSN if it exists.
func SnowflakeParseDSN(d string) (*SnowflakeConnectionDetails, error) {
	// Validate the DSN starts with 'snowflake://'
	re := regexp.MustCompile("^snowflake://")
	if !re.MatchString(d) {
		return nil, errors.New("unsupported Snowflake DSN format")
	}
	d = strings.TrimPrefix(d, "snowflake://")
	// Parse it the real DSN.
	cfg, err := sf.ParseDSN(d)
	if err != nil {
		return nil, err
	}
	retval := &SnowflakeConnectionDetails{
		User:      cfg.User,
		Password:  cfg.Password,
		Schema:    cfg.Schema,
		DBName:    cfg.Database,
		Account:   cfg.Account,
		RoleName:  cfg.Role,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Region != "" { // if region exists in the parsed config...
		// Add it to our account settings.
		retval.Account = fmt.Sprintf("%v.%v", retval.Account, cfg.Region)
	}
	return retval, nil
}
