package server

import (
	"os"
	"strconv"
	"strings"

	atomic_file "github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// writePIDFile atomically replaces path with the current process ID.
func writePIDFile(path string) error {
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := atomic_file.WriteFile(path, strings.NewReader(pid)); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	return nil
}

func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
