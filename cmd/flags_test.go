package cmd

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
)

func TestGetCliFlag(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	fnGetConfig := func(key string, out interface{}) error {
		return nil
	}
	flagName := "mock"
	mockEnvVar := flagNameToEnvVar(flagName)
	expected := "envTest"
	d := "myDefault"
	_ = os.Unsetenv(mockEnvVar)
	defer os.Unsetenv(mockEnvVar)
	// Test 1 - test default value applied to mock CLI flag.
	got := switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d { // if no default was applied...
		t.Fatalf("test 1 failed: expected default value %v to be applied to mock CLI flag", got.val)
	}
	// Test 2 - fetch flag value from environment when it is not set - expect default value to be applied.
	twelveFactorMode = true // enable twelveFactorMode so that env variables are read.
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != d {
		t.Fatalf("test 2 failed: expected default value (%v) to be applied to mock CLI flag fetched via environment variable (%v)", got.val, mockEnvVar)
	}
	// Test 3 - fetch flag value from environment after setting it explicitly (requires twelveFactorMode).
	err := os.Setenv(mockEnvVar, expected)
	if err != nil {
		t.Fatalf("test 3 failed: unable to set environment variable %v", mockEnvVar)
	}
	got = switches.getCliFlag(flagName, d, fnGetConfig)
	if got.val != expected {
		t.Fatalf("test 3 failed: expected value (%v) to be applied to mock CLI flag (%v) fetched from environment variable (%v); got: %v", expected, flagName, mockEnvVar, got.val)
	}
	// Test 4 - a value from config beats the default.
	twelveFactorMode = false
	fromConfig := func(key string, out interface{}) error {
		*out.(*string) = "fromConfig"
		return nil
	}
	if got = switches.getCliFlag(flagName, d, fromConfig); got.val != "fromConfig" {
		t.Fatalf("test 4 failed: expected: fromConfig; got: %v", got.val)
	}
}

func TestFlagNameToEnvVar(t *testing.T) {
	if got := flagNameToEnvVar("batch-size"); got != "RL_BATCH_SIZE" {
		t.Fatalf("expected: RL_BATCH_SIZE; got: %v", got)
	}
}

func TestAddFlagTwelveFactorBool(t *testing.T) {
	defer func() { twelveFactorMode = false }()
	twelveFactorMode = true
	name := flagNameToEnvVar("dry-run")
	defer os.Unsetenv(name)
	for in, want := range map[string]bool{"": false, "false": false, "true": true, "1": true} {
		_ = os.Setenv(name, in)
		var got bool
		switches.addFlag(&cobra.Command{}, &got, "dry-run", "false", false, "")
		if got != want {
			t.Fatalf("%q: expected: %v; got: %v", in, want, got)
		}
	}
}

func TestGetQueryFromArgsFunc(t *testing.T) {
	var conn, query string
	fn := getQueryFromArgsFunc(&conn, &query, "")
	if err := fn(nil, []string{"wh"}); err == nil {
		t.Fatal("expected an error with no SQL")
	}
	if err := fn(nil, []string{"wh", "select", "*", "from", "dim_product"}); err != nil {
		t.Fatal(err)
	}
	if conn != "wh" || query != "select * from dim_product" {
		t.Fatalf("unexpected connection %q and query %q", conn, query)
	}
}
