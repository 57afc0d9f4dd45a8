package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

func (d *DB) InsertLog(ctx context.Context, l LogLine) error {
	created := l.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := d.sql.ExecContext(ctx, "INSERT INTO import_logs(import_id, level, message, created_at) VALUES(?,?,?,?)", l.ImportID, l.Level, l.Message, formatTime(created))
	return err
}

// ListLogs returns the log of an import in emission order.
func (d *DB) ListLogs(ctx context.Context, importID string) ([]LogLine, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT import_id, level, message, created_at FROM import_logs WHERE import_id = ? ORDER BY id", importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LogLine{}
	for rows.Next() {
		var l LogLine
		var created string
		if err := rows.Scan(&l.ImportID, &l.Level, &l.Message, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LogHook persists client-facing import log entries so they can be polled
// while the import runs.
type LogHook struct {
	DB            *DB
	ImportIDField string
	InternalField string
}

func NewLogHook(db *DB, importIDField, internalField string) *LogHook {
	return &LogHook{DB: db, ImportIDField: importIDField, InternalField: internalField}
}

func (h *LogHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *LogHook) Fire(entry *logrus.Entry) error {
	id, ok := entry.Data[h.ImportIDField].(string)
	if !ok || id == "" {
		return nil
	}
	if internal, _ := entry.Data[h.InternalField].(bool); internal {
		return nil
	}
	msg := entry.Message
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok && err != nil {
		msg += ": " + err.Error()
	}
	return h.DB.InsertLog(context.Background(), LogLine{
		ImportID:  id,
		Level:     entry.Level.String(),
		Message:   msg,
		CreatedAt: entry.Time,
	})
}
