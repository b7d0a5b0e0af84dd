package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/aws/s3"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"golang.org/x/text/encoding/charmap"
)

type CSVSourceConfig struct {
	Log      logger.Logger `errorTxt:"logger" mandatory:"yes"`
	Location string        `errorTxt:"source file" mandatory:"yes"` // local path or s3://bucket/key
	Region   string        // S3 region, defaults to AWS_REGION
	// S3 is used for s3:// locations instead of a client built from the default credential chain.
	S3 s3.Opener
	// Opener replaces both of the above when set.
	Opener func(ctx context.Context) (io.ReadCloser, error)
}

// CSVSource reads a header-first CSV file of online retail transactions.
// Every call re-reads the file from the top so it holds no open handles between batches.
type CSVSource struct {
	CSVSourceConfig
	name    string
	mu      sync.Mutex
	count   int64
	counted bool
}

func NewCSVSource(cfg CSVSourceConfig) (*CSVSource, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	s := &CSVSource{CSVSourceConfig: cfg}
	if s3.IsS3URL(cfg.Location) {
		bucket, key, err := s3.ParseURL(cfg.Location)
		if err != nil {
			return nil, err
		}
		if key == "" || strings.HasSuffix(key, "/") {
			return nil, fmt.Errorf("S3 location %q does not name a file", cfg.Location)
		}
		s.name = path.Base(key)
		if s.Opener == nil {
			client := cfg.S3
			if client == nil {
				region := cfg.Region
				if region == "" {
					region = helper.ReadValueFromEnvWithDefault("AWS_REGION", "")
				}
				c, err := s3.NewBasicClient(bucket, region, "")
				if err != nil {
					return nil, errors.Wrap(err, "error creating S3 client")
				}
				client = c
			}
			s.Opener = func(ctx context.Context) (io.ReadCloser, error) {
				return client.Open(ctx, key)
			}
		}
	} else {
		s.name = filepath.Base(cfg.Location)
		if s.Opener == nil {
			loc := cfg.Location
			s.Opener = func(ctx context.Context) (io.ReadCloser, error) {
				return os.Open(loc)
			}
		}
	}
	return s, nil
}

func (s *CSVSource) Name() string {
	return s.name
}

// Count returns the number of data rows. The answer is cached after the first full read.
func (s *CSVSource) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counted {
		return s.count, nil
	}
	var n int64
	err := s.scan(ctx, func(h *header, idx int64, rec record) (bool, error) {
		n = idx
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	s.count, s.counted = n, true
	s.Log.Debug("source ", s.name, " has ", n, " data rows")
	return n, nil
}

func (s *CSVSource) ReadRange(ctx context.Context, start, end int64) ([]model.SourceRow, error) {
	if start < 1 {
		start = 1
	}
	rows := make([]model.SourceRow, 0)
	if end < start {
		return rows, nil
	}
	err := s.scan(ctx, func(h *header, idx int64, rec record) (bool, error) {
		if idx < start {
			return true, nil
		}
		if idx > end {
			return false, nil
		}
		rows = append(rows, h.row(s.name, idx, rec))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CSVSource) Each(ctx context.Context, fn func(model.SourceRow) error) error {
	return s.scan(ctx, func(h *header, idx int64, rec record) (bool, error) {
		if err := fn(h.row(s.name, idx, rec)); err != nil {
			return false, err
		}
		return true, nil
	})
}

// scan feeds fn every non-blank data record with its 1-based index until fn returns false.
func (s *CSVSource) scan(ctx context.Context, fn func(h *header, idx int64, rec record) (bool, error)) error {
	rc, err := s.Opener(ctx)
	if err != nil {
		return errors.Wrapf(err, "error opening source %v", s.Location)
	}
	defer rc.Close()
	sc := newRecordScanner(rc)
	var h *header
	var accept func(text string) bool
	var idx int64
	for {
		if idx%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := sc.Next(accept)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "error reading source %v", s.Location)
		}
		if !rec.tooLong && strings.TrimSpace(rec.text) == "" {
			continue
		}
		if h == nil { // first record is the header...
			if rec.tooLong || rec.unterminated {
				return fmt.Errorf("error reading header of %v: header line is malformed", s.Location)
			}
			h, err = parseHeader(strings.TrimPrefix(rec.text, "\ufeff"))
			if err != nil {
				return errors.Wrapf(err, "error reading header of %v", s.Location)
			}
			accept = h.accepts
			continue
		}
		idx++
		more, err := fn(h, idx, rec)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	if h == nil {
		return fmt.Errorf("source %v has no header line", s.Location)
	}
	return nil
}

// decodeLine returns line unchanged when it is valid UTF-8, otherwise it decodes it as Latin-1.
func decodeLine(line string) string {
	if utf8.ValidString(line) {
		return line
	}
	s, err := charmap.ISO8859_1.NewDecoder().String(line)
	if err != nil {
		return line
	}
	return s
}

func splitLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	return r.Read()
}
