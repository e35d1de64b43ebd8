// Package phase derives the display and notification state of the selected area.
package phase

import "github.com/mr1hm/go-shelter-alerts/internal/models"

type Phase string

const (
	Safe         Phase = "safe"
	EarlyWarning Phase = "earlyWarning"
	Critical     Phase = "critical"
	Yellow       Phase = "yellow"
	Orange       Phase = "orange"
	Red          Phase = "red"
	Sheltering   Phase = "sheltering"
	CanExit      Phase = "canExit"
)

// CriticalMigunTime is the largest migun time, in seconds, treated as too short
// to reposition.
const CriticalMigunTime = 30

type Input struct {
	Ended         bool                // ended flag from the client EndWatcher
	NoticePresent bool                // an early-warning notice is current
	Alert         *models.AlertRecord // active record for the selection, nil if none
	Remaining     float64             // seconds, already clock-corrected
}

// IsCritical reports whether an episode with this migun time gets the critical treatment.
func IsCritical(migunTime int) bool {
	return migunTime <= CriticalMigunTime
}

// Compute is evaluated every tick; the first matching rule wins.
func Compute(in Input) Phase {
	switch {
	case in.Ended:
		return CanExit
	case in.NoticePresent && in.Alert == nil:
		return EarlyWarning
	case in.Alert == nil:
		return Safe
	case IsCritical(in.Alert.MigunTime):
		return Critical
	case in.Remaining <= 0:
		return Sheltering
	}

	ratio := in.Remaining / float64(in.Alert.MigunTime)
	switch {
	case ratio > 0.5:
		return Yellow
	case ratio > 0.25:
		return Orange
	default:
		return Red
	}
}

// Alerting reports whether the phase belongs to an active alert episode.
func (p Phase) Alerting() bool {
	switch p {
	case Critical, Yellow, Orange, Red, Sheltering:
		return true
	}
	return false
}
