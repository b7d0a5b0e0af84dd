package helper

import (
	"os"
	"strings"
	"testing"
)

type testInner struct {
	Name string `errorTxt:"inner name" mandatory:"yes"`
}

type testCfg struct {
	BatchSize int         `errorTxt:"batch size" mandatory:"yes"`
	Source    string      `errorTxt:"source file" mandatory:"yes"`
	Optional  string      `errorTxt:"optional"`
	Sink      interface{} `errorTxt:"sink" mandatory:"yes"`
	Inner     testInner
	hidden    string `errorTxt:"hidden" mandatory:"yes"`
}

func TestValidateStructIsPopulated(t *testing.T) {
	// Test 1 - all mandatory fields missing.
	err := ValidateStructIsPopulated(&testCfg{})
	if err == nil {
		t.Fatal("expected an error for an empty struct")
	}
	for _, want := range []string{"batch size", "source file", "sink", "inner name"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q; got: %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "optional") || strings.Contains(err.Error(), "hidden") {
		t.Fatalf("unexpected field in error: %v", err)
	}
	// Test 2 - populated struct.
	c := testCfg{BatchSize: 10, Source: "x.csv", Sink: struct{}{}, Inner: testInner{Name: "n"}}
	if err := ValidateStructIsPopulated(c); err != nil {
		t.Fatalf("expected: nil; got: %v", err)
	}
}

func TestReadValueFromEnvWithDefault(t *testing.T) {
	name := "RL_TEST_READ_VALUE"
	_ = os.Unsetenv(name)
	if got := ReadValueFromEnvWithDefault(name, "x"); got != "x" {
		t.Fatalf("expected: x; got: %v", got)
	}
	_ = os.Setenv(name, "y")
	defer os.Unsetenv(name)
	if got := ReadValueFromEnvWithDefault(name, "x"); got != "y" {
		t.Fatalf("expected: y; got: %v", got)
	}
}

func TestGetDsnEnvVarName(t *testing.T) {
	if got := GetDsnEnvVarName(" warehouse "); got != "RL_WAREHOUSE_DSN" {
		t.Fatalf("expected: RL_WAREHOUSE_DSN; got: %v", got)
	}
}
