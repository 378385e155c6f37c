/*
notify.go - Outbound notifications for completed movements

Notifications are advisory. They fire after the transaction commits and a
delivery failure never unwinds a movement; the engine logs the failure and
moves on. Swap in a real Notifier (mail, SMS gateway) at wiring time.
*/
package stock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification describes one advisory message addressed to a station's
// staff.
type Notification struct {
	Station   StationID
	Title     string
	Body      string
	Severity  Severity
	Reference string
	At        time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards everything. Useful in tests and batch tooling.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// LogNotifier writes notifications to the structured log. This is the
// default sink until a real delivery channel is configured.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.Log.WithFields(logrus.Fields{
		"station":   msg.Station,
		"severity":  msg.Severity,
		"reference": msg.Reference,
		"title":     msg.Title,
	}).Info(msg.Body)
	return nil
}
