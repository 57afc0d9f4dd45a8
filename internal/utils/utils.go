package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

// Log field names shared by the import pipeline and the log hook.
const (
	FieldImportID = "import_id"
	FieldService  = "service"
	FieldInternal = "internal"
)

// NewImportID returns a fresh correlation id for one import run.
func NewImportID() string {
	return uuid.NewString()
}

// JobLogger returns the entry every log line of an import job goes through.
func JobLogger(logger *logrus.Logger, importID, service string) *logrus.Entry {
	if logger == nil {
		logger = Log
	}
	return logger.WithFields(logrus.Fields{
		FieldImportID: importID,
		FieldService:  service,
	})
}

// Internal marks an entry as operator-only; it is not shown to the polling client.
func Internal(e *logrus.Entry) *logrus.Entry {
	return e.WithField(FieldInternal, true)
}
