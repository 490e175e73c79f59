package ferromic

import (
	"fmt"
	"io"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// Verbose controls console chatter (progress bars, per-pair command
// echoes). The run log written by OpenRunLog is unaffected.
var Verbose = false

func Vprint(s string) {
	if Verbose {
		fmt.Fprint(os.Stdout, s)
	}
}

func Vprintf(format string, v ...interface{}) {
	if Verbose {
		fmt.Fprintf(os.Stdout, format, v...)
	}
}

func Vprintln(s string) {
	if Verbose {
		fmt.Fprintln(os.Stdout, s)
	}
}

// OpenRunLog points the logger at both stdout and a log file inside dir,
// mirroring every warning and error into a record that survives the run.
// The returned file should be closed by the caller when the run ends.
func OpenRunLog(dir, name string, quiet bool) (*os.File, error) {
	f, err := os.OpenFile(
		path.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("Could not open log file '%s': %s.",
			path.Join(dir, name), err)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if quiet {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	log.SetLevel(log.InfoLevel)
	return f, nil
}
