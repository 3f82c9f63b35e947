package worker

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("TUTORGATE_WORKER_DEBUG"), "1")

func debugLog(log logrus.FieldLogger, format string, args ...interface{}) {
	if workerDebugEnabled {
		log.Infof(format, args...)
	}
}
