package actions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/aws/s3"
	"github.com/relloyd/retail-loader/components"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/source"
)

const DefaultProfileFile = "data_profile.json"

type ProfileConfig struct {
	SourceLocation   string `errorTxt:"source file" mandatory:"yes"`
	S3Region         string
	OutputFile       string    // JSON is written here; "-" writes to Out instead.
	S3               s3.Putter // used for s3:// output files instead of a client built from the default credential chain.
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

// RunProfile reads the whole source file and saves a JSON data profile.
func RunProfile(ctx context.Context, cfg *ProfileConfig) (*components.SourceProfile, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, pipeline.NewConfigError(err, "incomplete profile configuration")
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = DefaultProfileFile
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	ctx, cancel := interruptibleContext(ctx, log)
	defer cancel()
	src, err := source.NewCSVSource(source.CSVSourceConfig{Log: log, Location: cfg.SourceLocation, Region: cfg.S3Region})
	if err != nil {
		return nil, pipeline.NewConfigError(err, "invalid source %q", cfg.SourceLocation)
	}
	p, err := components.NewSourceProfiler(components.SourceProfilerConfig{Log: log, Source: src})
	if err != nil {
		return nil, err
	}
	prof, err := p.Profile(ctx)
	if err != nil {
		return nil, err
	}
	out := outputOrStdout(cfg.Out)
	switch {
	case cfg.OutputFile == "-":
		return prof, writeJSON(out, prof)
	case s3.IsS3URL(cfg.OutputFile):
		err = putProfileS3(ctx, cfg, prof)
	default:
		err = saveProfileFile(cfg.OutputFile, prof)
	}
	if err != nil {
		return nil, err
	}
	writeProfileSummary(out, prof, cfg.OutputFile)
	return prof, nil
}

func saveProfileFile(name string, prof *components.SourceProfile) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("error creating profile file %q: %w", name, err)
	}
	if err = writeJSON(f, prof); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("error closing profile file %q: %w", name, err)
	}
	return nil
}

func putProfileS3(ctx context.Context, cfg *ProfileConfig, prof *components.SourceProfile) error {
	bucket, key, err := s3.ParseURL(cfg.OutputFile)
	if err != nil {
		return pipeline.NewConfigError(err, "invalid profile file")
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return pipeline.NewConfigError(nil, "S3 profile file %q does not name an object", cfg.OutputFile)
	}
	client := cfg.S3
	if client == nil {
		region := cfg.S3Region
		if region == "" {
			region = helper.ReadValueFromEnvWithDefault("AWS_REGION", "")
		}
		c, err := s3.NewBasicClient(bucket, region, "")
		if err != nil {
			return errors.Wrap(err, "error creating S3 client")
		}
		client = c
	}
	buf := &bytes.Buffer{}
	if err = writeJSON(buf, prof); err != nil {
		return err
	}
	if err = client.Put(ctx, key, bytes.NewReader(buf.Bytes()), "application/json"); err != nil {
		return errors.Wrapf(err, "error saving profile to %v", cfg.OutputFile)
	}
	return nil
}

func writeProfileSummary(w io.Writer, p *components.SourceProfile, path string) {
	q := p.DataQuality
	_, _ = fmt.Fprintf(w, "Profiled %v: %v rows, %v columns\n", p.FileInfo.SourceFile, p.FileInfo.TotalRows, p.FileInfo.TotalColumns)
	_, _ = fmt.Fprintf(w, "Duplicates: %v, rows with nulls: %v, malformed: %v\n", q.TotalDuplicates, q.RowsWithAnyNull, q.MalformedRows)
	_, _ = fmt.Fprintf(w, "Negative quantities: %v, zero prices: %v, missing customers: %v\n", q.NegativeQuantities, q.ZeroPrices, q.MissingCustomers)
	_, _ = fmt.Fprintf(w, "Profile saved to %v\n", path)
}
