package logger

import (
	"io"
	"io/ioutil"

	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Error(...interface{})
	Fatal(...interface{})
	Silent(bool)
	Writer() io.Writer
	SetWriter(io.Writer)
}

type logger struct {
	*log.Logger
	// out holds the real writer while the logger is silenced.
	out io.Writer
}

// NewLogger returns a new Logger instance backed by Logrus.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	logFormatter := &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	l.Formatter = logFormatter
	return &logger{Logger: l}
}

func (l *logger) Writer() io.Writer {
	return l.Out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.Out = writer
}

// Silent discards all output while enabled. Disabling restores the writer in
// use when Silent(true) was called; disabling a logger that was never
// silenced panics.
func (l *logger) Silent(enabled bool) {
	if enabled {
		if l.out == nil {
			l.out = l.Out
			l.Out = ioutil.Discard
		}
		return
	}
	if l.out == nil {
		panic("logger: Silent(false) called without Silent(true)")
	}
	l.Out = l.out
	l.out = nil
}
