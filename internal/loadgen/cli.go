package loadgen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/reel/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging sends log output to both stdout and a file. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile string) (string, error) {
	if logFile == "" {
		logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission) //nolint:gosec // operator supplied path
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logFile, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Reel Load Generator
===================

Fires concurrent recommendation requests and checks every response:
one item per trending movie, in trending order, with scores in (0, 100).

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -requests int
        Number of recommendation requests (default 1000)
  -users string
        Comma separated user ids (default: every profile)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -refresh
        Bypass the recommendation cache
  -output string
        Output file for results (default: loadgen_results_TIMESTAMP.json)
  -log string
        Log file (default: loadgen_TIMESTAMP.log)
  -verbose
        Log every failed request
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -requests 5000 -workers 32
  go run ./cmd/loadgen -users 6,12 -refresh
`)
}
