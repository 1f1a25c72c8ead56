package achutil

import (
	"io"
	"log/syslog"
)

// newSyslogWriter opens a connection to the local syslog daemon tagged
// with name, returning it as a plain io.Writer so it can be installed as
// a logrus output. POSIX syslog only; Windows is a declared non-goal.
func newSyslogWriter(name string) (io.Writer, error) {
	return syslog.New(syslog.LOG_DAEMON|syslog.LOG_NOTICE, name)
}
