package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relloyd/retail-loader/components"
)

func TestRunProfileWritesJSON(t *testing.T) {
	csvPath, _, _ := newTestFixture(t)
	outFile := filepath.Join(t.TempDir(), "profile.json")
	out := &bytes.Buffer{}
	p, err := RunProfile(context.Background(), &ProfileConfig{SourceLocation: csvPath, OutputFile: outFile, LogLevel: "error", Out: out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FileInfo.TotalRows != 4 || p.DataQuality.NegativePrices != 1 || p.DataQuality.ReturnRows != 1 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	b, err := ioutil.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	saved := components.SourceProfile{}
	if err = json.Unmarshal(b, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.FileInfo.SourceFile != "online_retail.csv" || len(saved.Columns) != 8 {
		t.Fatalf("unexpected saved profile: %+v", saved.FileInfo)
	}
	if !strings.Contains(out.String(), "Profile saved to "+outFile) {
		t.Fatalf("unexpected output: %v", out.String())
	}
}

func TestRunProfileMissingSource(t *testing.T) {
	_, err := RunProfile(context.Background(), &ProfileConfig{OutputFile: "-", Out: &bytes.Buffer{}})
	if ExitCode(err) != ExitCodeConfigError {
		t.Fatalf("expected a config error; got: %v", err)
	}
}

type fakePutter struct {
	key  string
	body []byte
}

func (f *fakePutter) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) (err error) {
	f.key = key
	f.body, err = ioutil.ReadAll(body)
	return
}

func TestRunProfileToS3(t *testing.T) {
	csvPath, _, _ := newTestFixture(t)
	putter := &fakePutter{}
	out := &bytes.Buffer{}
	_, err := RunProfile(context.Background(), &ProfileConfig{
		SourceLocation: csvPath,
		OutputFile:     "s3://retail-bucket/profiles/data_profile.json",
		S3:             putter,
		LogLevel:       "error",
		Out:            out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if putter.key != "profiles/data_profile.json" {
		t.Fatalf("expected: profiles/data_profile.json; got: %v", putter.key)
	}
	saved := components.SourceProfile{}
	if err = json.Unmarshal(putter.body, &saved); err != nil || saved.FileInfo.TotalRows != 4 {
		t.Fatalf("unexpected saved profile: %+v (%v)", saved.FileInfo, err)
	}
	// Test 2 - bucket without an object key.
	_, err = RunProfile(context.Background(), &ProfileConfig{SourceLocation: csvPath, OutputFile: "s3://retail-bucket/", S3: putter, LogLevel: "error", Out: out})
	if ExitCode(err) != ExitCodeConfigError {
		t.Fatalf("expected a config error; got: %v", err)
	}
}
