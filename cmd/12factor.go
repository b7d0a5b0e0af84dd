package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/config"
	c "github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// init will be called first due to the lexical order in which these functions are executed.
// This ensures the value of twelveFactorMode is set such that other init() functions that configure
// Cobra can do the job of processing all environment variables that would contain equivalent of the CLI flag
// structures used by the actions.
func init() {
	setupTwelveFactorMode()
}

// setupTwelveFactorMode will enable or disable 12 factor mode based on environment variable.
func setupTwelveFactorMode() {
	mode := os.Getenv(envVarTwelveFactorMode)
	if mode != "" { // if variable for 12factor mode is set and we should read env vars to determine actions...
		twelveFactorMode = true
		if strings.ToLower(mode) == "lambda" {
			lambdaMode = true
		}
	} else { // else 12factor mode should be off...
		twelveFactorMode = false // explicitly turn off this mode since tests may have turned it on while others require it off.
		lambdaMode = false
	}
}

const (
	envVarTwelveFactorMode         = c.EnvVarPrefix + "_" + "12FACTOR_MODE"
	envVarCommand                  = c.EnvVarPrefix + "_" + "COMMAND"
	envVarSubcommand               = c.EnvVarPrefix + "_" + "SUBCOMMAND"
	envVarWarehouseType            = c.EnvVarPrefix + "_" + "WAREHOUSE_TYPE" // snowflake|postgres|local|mock
	envVarLogLevel                 = c.EnvVarPrefix + "_" + "LOG_LEVEL"
	envVarStackDump                = c.EnvVarPrefix + "_" + "STACK_DUMP"
	defaultConnectionNameWarehouse = "WAREHOUSE"
)

var (
	twelveFactorMode bool // true if os env var envVarTwelveFactorMode is set
	lambdaMode       bool // true if os env var envVarTwelveFactorMode is "lambda"
	twelveFactorVars = map[string]string{
		envVarCommand:       "",
		envVarSubcommand:    "",
		envVarWarehouseType: "",
		helper.GetDsnEnvVarName(defaultConnectionNameWarehouse): "",
		envVarLogLevel:  "",
		envVarStackDump: "",
	}
	twelveFactorVarsSensitive = map[string]string{ // used to flag some of the above variables as being sensitive.
		helper.GetDsnEnvVarName(defaultConnectionNameWarehouse): "",
	}
)

type twelveFactorAction struct {
	setupFunc  func(warehouseName string)
	runnerFunc func() error
}

// twelveFactorActions is keyed by <command> or <command>-<subcommand>.
var twelveFactorActions = map[string]twelveFactorAction{
	"load": {
		setupFunc: func(warehouseName string) {
			loadCfg.WarehouseName = warehouseName
		},
		runnerFunc: runLoad,
	},
	"status": {
		setupFunc: func(warehouseName string) {
			statusCfg.WarehouseName = warehouseName
		},
		runnerFunc: runStatus,
	},
	"serve": {
		setupFunc: func(warehouseName string) {
			serveConfig.WarehouseName = warehouseName
		},
		runnerFunc: runServe,
	},
	"create-schema": {
		setupFunc: func(warehouseName string) {
			createSchemaCfg.WarehouseName = warehouseName
		},
		runnerFunc: runCreateSchema,
	},
	"quarantine": {
		setupFunc: func(warehouseName string) {
			quarantineCfg.WarehouseName = warehouseName
		},
		runnerFunc: runQuarantine,
	},
	"profile": {
		setupFunc:  func(warehouseName string) {},
		runnerFunc: runProfile,
	},
}

func getConnectionLoader() actions.ConnectionLoader {
	if twelveFactorMode {
		return &TwelveFactorConnections{}
	}
	return config.Connections
}

func getConnectionGetterSetter() actions.ConnectionGetterSetter {
	if twelveFactorMode {
		fmt.Printf("Error: connections cannot be configured when %v is set (supply them using %v and %v instead)\n",
			envVarTwelveFactorMode,
			envVarWarehouseType,
			helper.GetDsnEnvVarName(defaultConnectionNameWarehouse))
		os.Exit(1)
	}
	return config.Connections
}

// twelveFactorActionKey joins the command and optional subcommand.
func twelveFactorActionKey(command, subcommand string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	subcommand = strings.ToLower(strings.TrimSpace(subcommand))
	if subcommand == "" {
		return command
	}
	return fmt.Sprintf("%v-%v", command, subcommand)
}

func execute12FactorMode(acts map[string]twelveFactorAction) (err error) {
	logLevel := helper.ReadValueFromEnvWithDefault(envVarLogLevel, "warn") // fetch logLevel from env as this is not a persistent flag, given that we wanted different logging defaults per cobra action.
	stackDump, _ := parseBoolFlag(os.Getenv(envVarStackDump))
	stackDumpOnPanic = stackDumpOnPanic || stackDump
	log := logger.NewLogger(c.ServiceName, logLevel, stackDumpOnPanic)
	log.Info(c.AppName, " is running in 12 Factor mode...")
	// Save values for the required variables.
	for k := range twelveFactorVars { // for each env variable that we need...
		// Save it and log it.
		twelveFactorVars[k] = os.Getenv(k)
		_, sensitive := twelveFactorVarsSensitive[k]
		if !sensitive { // if the env variable does not contain sensitive values...
			log.Debug(k, "=", twelveFactorVars[k])
		} else { // else output obfuscated value...
			log.Debug(k, "=", "<obfuscated>")
		}
	}
	// Use command and subcommand to fetch the appropriate action.
	action := twelveFactorActionKey(twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
	if action == "" { // if there's no command...
		action = "load" // the batch job is the default.
	}
	a, ok := acts[action]
	if !ok {
		err = fmt.Errorf("invalid combination of command (%v) and subcommand (%v)", twelveFactorVars[envVarCommand], twelveFactorVars[envVarSubcommand])
		log.Error(err.Error())
		return
	}
	a.setupFunc(defaultConnectionNameWarehouse)
	// Run the action.
	err = a.runnerFunc()
	if err != nil {
		log.Error("Error: ", err)
	}
	return err
}

// newTwelveFactorLambdaHandler returns the AWS Lambda handler that advances the pipeline by one batch per invocation.
func newTwelveFactorLambdaHandler() func(ctx context.Context) (actions.LoadSummary, error) {
	for k := range twelveFactorVars {
		twelveFactorVars[k] = os.Getenv(k)
	}
	loadCfg.WarehouseName = defaultConnectionNameWarehouse
	loadCfg.Connections = getConnectionLoader()
	loadCfg.StackDumpOnPanic = stackDumpOnPanic
	return actions.NewLambdaHandler(&loadCfg)
}

type TwelveFactorConnections struct{} // implements interfaces in module, actions.

// GetConnectionType is for use when running in twelveFactorMode.
// It returns the value of envVarWarehouseType, which is the only connection available.
// It reads the global map twelveFactorVars[] which should have been setup using environment variables.
func (t *TwelveFactorConnections) GetConnectionType(connectionName string) (connectionType string, err error) {
	if connectionName != defaultConnectionNameWarehouse {
		return "", fmt.Errorf("unexpected connectionName %v while running in twelveFactorMode", connectionName)
	}
	connectionType = strings.ToLower(strings.TrimSpace(twelveFactorVars[envVarWarehouseType]))
	if connectionType == "" {
		return "", fmt.Errorf("missing value for %v", envVarWarehouseType)
	}
	return connectionType, nil
}

// GetConnectionDetails builds the warehouse connection from the environment.
// The DSN is read from <prefix>_<connectionName>_DSN. Snowflake connections without a DSN fall back to the
// SNOWFLAKE_* variables. For local warehouses the DSN is the path of the snapshot file.
func (t *TwelveFactorConnections) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	vType, err := t.GetConnectionType(connectionName)
	if err != nil {
		return nil, err
	}
	var vDsn string
	kDsn := helper.GetDsnEnvVarName(connectionName)
	if err := helper.ReadValueFromEnv(kDsn, &vDsn); err != nil { // if we cannot find the DSN in the environment...
		switch vType {
		case c.ConnectionTypeMock: // no DSN required.
		case c.ConnectionTypeSnowflake:
			sf, serr := rdbms.SnowflakeConnectionDetailsFromEnv()
			if serr != nil {
				return nil, fmt.Errorf("unable to find %v or Snowflake connection details in the environment: %w", kDsn, serr)
			}
			if vDsn, err = rdbms.SnowflakeGetDSN(sf); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unable to find value for %v in the environment: %w", kDsn, err)
		}
	}
	d, err := actions.NewConnectionDetails(connectionName, vType, vDsn)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadConnection mimics loading connection details from the config file, but reads them from the environment.
func (t *TwelveFactorConnections) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d, err := t.GetConnectionDetails(connectionName)
	if err != nil {
		return shared.ConnectionDetails{}, err
	}
	return *d, nil
}
