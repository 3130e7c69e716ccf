// Package logging provides component-scoped structured log entries, the
// same "always log the subject" discipline the teacher's fs.Logf/fs.Errorf
// helpers use, built on logrus rather than an ad hoc formatter.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Base is the process-wide logrus logger. Tests may swap Base.Out.
var Base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	return l
}

// For returns a log entry scoped to subject (a host key, a path, a rule
// category — whatever the call site is about), following the teacher's
// convention of always naming what a log line concerns.
func For(subject string) *logrus.Entry {
	return Base.WithField("subject", subject)
}

// WithHost scopes a log entry to a host's protocol and address.
func WithHost(protocol, address string) *logrus.Entry {
	return Base.WithFields(logrus.Fields{"protocol": protocol, "host": address})
}

// WithFile scopes a log entry to a file reference under analysis.
func WithFile(host, fullPath string, archiveChain []string) *logrus.Entry {
	e := Base.WithFields(logrus.Fields{"host": host, "path": fullPath})
	if len(archiveChain) > 0 {
		e = e.WithField("archive_chain", archiveChain)
	}
	return e
}
