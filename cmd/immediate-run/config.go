package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
)

var errUsage = errors.New("usage: immediate-run [flags] script.js")

type config struct {
	script   string
	timeout  time.Duration
	logLevel logiface.Level
	quiet    bool
}

// parseArgs parses the command line, writing flag errors and usage to output.
func parseArgs(args []string, output io.Writer) (*config, error) {
	var (
		cfg      config
		logLevel string
	)

	fs := flag.NewFlagSet("immediate-run", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(output, errUsage.Error())
		fs.PrintDefaults()
	}
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "maximum run time, 0 to disable")
	fs.StringVar(&logLevel, "log-level", logiface.LevelError.String(), "minimum log level (disabled, emerg, alert, crit, err, warning, notice, info, debug, trace)")
	fs.BoolVar(&cfg.quiet, "quiet", false, "suppress the summary logged on exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errUsage
	}
	cfg.script = fs.Arg(0)

	if cfg.timeout < 0 {
		return nil, fmt.Errorf("invalid -timeout: %s", cfg.timeout)
	}

	var err error
	if cfg.logLevel, err = parseLevel(logLevel); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// parseLevel accepts the syslog keywords used by logiface.Level.String, and
// the deprecated aliases.
func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "none", "off":
		return logiface.LevelDisabled, nil
	case "panic":
		return logiface.LevelEmergency, nil
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid -log-level: %q", s)
}
