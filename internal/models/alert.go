package models

import "time"

// AlertType is the normalized alert category. Both upstream feeds map their own
// numeric codes onto this set.
type AlertType string

const (
	AlertTypeMissiles              AlertType = "missiles"
	AlertTypeHostileAircraft       AlertType = "hostileAircraftIntrusion"
	AlertTypeEarthquake            AlertType = "earthQuake"
	AlertTypeRadiological          AlertType = "radiologicalEvent"
	AlertTypeTsunami               AlertType = "tsunami"
	AlertTypeHazardousMaterials    AlertType = "hazardousMaterials"
	AlertTypeTerroristInfiltration AlertType = "terroristInfiltration"
	AlertTypeNewsFlash             AlertType = "newsFlash" // early warning, never an AlertRecord
	AlertTypeEventEnded            AlertType = "eventEnded"
	AlertTypeDrill                 AlertType = "drill"
	AlertTypeUnknown               AlertType = "unknown"
)

// GraceWindow is how long a record survives past its migun time before it is
// dropped, to ride out feed gaps.
const GraceWindow = 30 * time.Second

// NoticeTTL bounds how long an early-warning notice stays current.
const NoticeTTL = 600 * time.Second

// DefaultMigunTime applies to areas missing from the catalog.
const DefaultMigunTime = 90

type AlertRecord struct {
	Area         string    `json:"area"`
	MigunTime    int       `json:"migun_time"` // seconds
	StartedAt    int64     `json:"started_at"` // epoch ms of first detection
	Type         AlertType `json:"type,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
}

// Elapsed returns the time since the record was first detected.
func (r *AlertRecord) Elapsed(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-r.StartedAt) * time.Millisecond
}

// Expired reports whether the record outlived its migun time plus the grace window.
func (r *AlertRecord) Expired(now time.Time) bool {
	return r.Elapsed(now) > time.Duration(r.MigunTime)*time.Second+GraceWindow
}

// EarlyWarningNotice is the singleton "newsFlash" message.
type EarlyWarningNotice struct {
	Type         AlertType `json:"type"`
	Instructions string    `json:"instructions"`
	Timestamp    int64     `json:"timestamp"` // epoch ms of issuance
	Areas        []string  `json:"areas"`
}

func (n *EarlyWarningNotice) Expired(now time.Time) bool {
	return now.UnixMilli()-n.Timestamp > NoticeTTL.Milliseconds()
}

// Snapshot is the read contract served at /api/alerts.
type Snapshot struct {
	Alerts     []AlertRecord       `json:"alerts"`
	NewsFlash  *EarlyWarningNotice `json:"newsFlash"`
	ServerTime int64               `json:"server_time"`
}
