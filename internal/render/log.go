package render

import (
	"context"

	"zbxbridge/internal/notifier"
	logx "zbxbridge/pkg/logx"
)

// Log writes one structured line per incident. It is the renderer used when
// no other sink is configured.
type Log struct {
	log     logx.Logger
	appName string
}

func NewLog(log logx.Logger, appName string) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "render.log")), appName: appName}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Render(_ context.Context, it notifier.Item, _ notifier.AckFunc) error {
	fields := []logx.Field{
		logx.String("app", l.appName),
		logx.String("eventid", it.Problem.EventID),
		logx.String("summary", it.Summary()),
		logx.String("body", it.Body()),
		logx.String("urgency", it.Urgency()),
	}
	if it.OpenURL != "" {
		fields = append(fields, logx.String("url", it.OpenURL))
	}
	if it.HasLatency {
		fields = append(fields, logx.Duration("latency", it.Latency))
	}
	l.log.Info("incident", fields...)
	return nil
}
