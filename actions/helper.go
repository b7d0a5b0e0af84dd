package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
)

// outputOrStdout returns w, or STDOUT when w is nil.
func outputOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func newLogger(logLevel string, stackDumpOnPanic bool) logger.Logger {
	if logLevel == "" {
		logLevel = "warn"
	}
	return logger.NewLogger(constants.ServiceName, logLevel, stackDumpOnPanic)
}

func getPrintLogFunc(log logger.Logger, out io.Writer, useStdOut bool) func(msg string) {
	return func(msg string) {
		if useStdOut {
			_, _ = fmt.Fprintln(outputOrStdout(out), msg)
		} else {
			log.Info(msg)
		}
	}
}

// writeJSON writes v to w as indented JSON followed by a new line.
func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// valuesToStrings renders driver values for CSV output.
func valuesToStrings(i []interface{}) []string {
	s := make([]string, len(i))
	for idx, v := range i {
		switch x := v.(type) {
		case nil:
			s[idx] = ""
		case time.Time:
			s[idx] = x.Format(time.RFC3339)
		case []byte:
			s[idx] = string(x)
		default:
			s[idx] = fmt.Sprintf("%v", x)
		}
	}
	return s
}

// interruptibleContext returns a context that is cancelled on SIGINT or SIGTERM.
// Call the returned func to release the signal handler.
func interruptibleContext(parent context.Context, log logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	chanQuit := make(chan os.Signal, 2)
	signal.Notify(chanQuit, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-chanQuit:
			log.Warn("User abort, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(chanQuit)
		cancel()
	}
}
