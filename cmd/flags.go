package cmd

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/relloyd/retail-loader/config"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	val       string // default value
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"mock": cliFlag{name: "mock", shortHand: "m", desc: "mock switch for testing"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"warehouse": cliFlag{name: "warehouse", shortHand: "w",
		desc: "Name of the warehouse connection (see 'config connections add')"},
	"source": cliFlag{name: "source", shortHand: "s",
		desc: "The online retail CSV file to load: a local path or s3://<bucket>/<key>"},
	"s3-region": cliFlag{name: "s3-region", shortHand: "R",
		desc: "AWS S3 bucket region when the source is in S3 (default: AWS_REGION)"},
	"pipeline-name": cliFlag{name: "pipeline-name", shortHand: "n",
		desc: "Name of the pipeline that owns the checkpoint and the lock"},
	"batch-size": cliFlag{name: "batch-size", shortHand: "b",
		desc: "Number of source rows in each batch"},
	"batch": cliFlag{name: "batch", shortHand: "B",
		desc: "Process this batch number instead of the next one. Rows that are already loaded \n" +
			"are skipped and the checkpoint only moves if this is the next batch"},
	"next": cliFlag{name: "next", shortHand: "",
		desc: "Process the batch after the checkpoint (the default unless 'batch' is set)"},
	"timeout": cliFlag{name: "timeout", shortHand: "t",
		desc: "Number of seconds a batch may run before it is failed (use 0 for no limit)"},
	"lock-ttl": cliFlag{name: "lock-ttl", shortHand: "L",
		desc: "Number of seconds the pipeline lock is held before another run may take it"},
	"rules": cliFlag{name: "rules", shortHand: "r",
		desc: "YAML or JSON file of extra JSONLogic quality rules applied to every row"},
	"push-gateway": cliFlag{name: "push-gateway", shortHand: "g",
		desc: "Prometheus push gateway URL to send batch metrics to after each run"},
	"output": cliFlag{name: "output", shortHand: "o",
		desc: "Output format: \"text\" or \"json\""},
	"runs": cliFlag{name: "runs", shortHand: "N",
		desc: "Number of recent runs to show"},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
	"execute-ddl": cliFlag{name: "execute-ddl", shortHand: "e",
		desc: "Execute the generated DDL against the warehouse connection (otherwise it's printed only)"},
	"profile-file": cliFlag{name: "profile-file", shortHand: "f",
		desc: "File or s3://bucket/key to save the JSON data profile to (use - for STDOUT)"},
	"limit": cliFlag{name: "limit", shortHand: "m",
		desc: "Maximum number of rows to print"},
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by other commands"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "Connect string to parse"},
	"path": cliFlag{name: "path", shortHand: "P",
		desc: "Path of the JSON file that holds a local warehouse"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
	"print-header": cliFlag{name: "print-header", shortHand: "x",
		desc: "Print a header row with CSV output"},
	"dry-run": cliFlag{name: "dry-run", shortHand: "d",
		desc: "Print the SQL query without executing it"},
}

// addFlag add a flag to combra.Command c, based on the type of targetVar (which must be a pointer).
// The name of the flag is looked up in map, cliFlags.
// When running in twelveFactorMode, the targetVar is populated using the value of environment variable for the supplied
// name, or if not set then the supplied default value is used.
// When NOT running in twelveFactorMode, the default value is fetched from config if it exists else the supplied
// defaultValue is applied.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
// This function is using the value of twelveFactorMode to determine its mode of operation since it is
// normally called from init() functions.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	v := reflect.ValueOf(targetVar)
	if v.Kind() != reflect.Ptr {
		fmt.Println("error adding flag: targetVar must be a pointer")
		os.Exit(1)
	}
	sw := f.getCliFlag(name, defaultValue, config.Main.Get) // get the cliFlag details, with defaults taken from config or the supplied defaultValue
	desc := sw.desc + desc2                                 // create the full flag description for use below
	// Apply the flag.
	switch p := targetVar.(type) {
	case *string:
		if twelveFactorMode {
			*p = sw.val
		} else {
			c.Flags().StringVarP(p, sw.name, sw.shortHand, sw.val, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	case *bool:
		defaultBool, err := parseBoolFlag(sw.val)
		if err != nil {
			fmt.Printf("the value for flag %q must be true or false: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultBool
		} else {
			c.Flags().BoolVarP(p, sw.name, sw.shortHand, defaultBool, desc)
			// Signal that the flag was set so defaults take effect.
			mustSetFlag(c.Flags(), sw.name, strconv.FormatBool(defaultBool))
		}
	case *int:
		defaultInt, err := strconv.Atoi(strings.TrimSpace(sw.val))
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		if twelveFactorMode {
			*p = defaultInt
		} else {
			c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
			// Signal that the flag was set so defaults take effect.
			if sw.val != "" { // if there is a value via config or default...
				mustSetFlag(c.Flags(), sw.name, sw.val)
			}
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	// Optionally mark the flag as mandatory.
	if required && !twelveFactorMode { // if the flag is required...
		_ = c.MarkFlagRequired(sw.name)
	}
}

// parseBoolFlag treats an empty value as false and accepts anything strconv.ParseBool does.
func parseBoolFlag(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// getCliFlag fetches the value of name from the environment, when running in twelveFactorMode,
// else read the Main config file to find it.
// If a value cannot be found then use the supplied defaultValue in its place.
func (f *cliFlags) getCliFlag(name string, defaultValue string, fnGetConfig func(key string, out interface{}) error) cliFlag {
	s, ok := switches[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	if twelveFactorMode { // if we should read env vars...
		if err := helper.ReadValueFromEnv(flagNameToEnvVar(name), &s.val); err != nil { // if there's no value for the env var read into the switch val...
			// Apply the default.
			s.val = defaultValue
		}
	} else { // else check the config file or apply default...
		err := fnGetConfig(s.name, &s.val)
		if errors.As(err, &config.KeyNotFoundError{}) || s.val == "" { // if there was no key found...
			// Apply the default.
			s.val = defaultValue
		}
	}
	return s
}

// flagNameToEnvVar will form a sanitised environment variable name using constants.EnvVarPrefix.
func flagNameToEnvVar(name string) string {
	return constants.EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// getQueryFromArgsFunc saves args[0] as the connection name and concatenates the rest into a SQL string.
// Returns an error if there are fewer than 2 args.
func getQueryFromArgsFunc(connectionName *string, query *string, customErrMsg string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 { // if we are missing arguments...
			if customErrMsg != "" {
				return errors.New(customErrMsg)
			}
			return errors.New("please supply a connection and a SQL query")
		}
		*connectionName = args[0]
		*query = strings.Join(args[1:], " ")
		return nil
	}
}
