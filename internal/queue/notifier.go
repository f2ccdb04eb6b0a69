package queue

import "github.com/rs/zerolog"

// Notifier surfaces check-ins to people using the clinic UI
type Notifier interface {
	NotifyCheckIn(checkIn CheckIn)
}

// Invalidator drops cached query results by key prefix
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

// LogNotifier writes check-ins to the log when no live channel is available
type LogNotifier struct {
	Logger zerolog.Logger
}

// NotifyCheckIn logs the check-in
func (n LogNotifier) NotifyCheckIn(checkIn CheckIn) {
	n.Logger.Info().
		Str("patient_name", checkIn.PatientName).
		Str("doctor_name", checkIn.DoctorName).
		Msg("Patient checked in")
}

// MultiNotifier fans a check-in out to several notifiers in order
type MultiNotifier []Notifier

// NotifyCheckIn notifies every member
func (m MultiNotifier) NotifyCheckIn(checkIn CheckIn) {
	for _, n := range m {
		n.NotifyCheckIn(checkIn)
	}
}
