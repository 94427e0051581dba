package application

import (
	"strings"
	"time"
)

// Gcode states reported by the printer.
const (
	GcodeStateIdle    = "IDLE"
	GcodeStatePrepare = "PREPARE"
	GcodeStateRunning = "RUNNING"
	GcodeStatePause   = "PAUSE"
	GcodeStateFinish  = "FINISH"
	GcodeStateFailed  = "FAILED"
)

type Temperature struct {
	Current float64
	Target  float64
}

type AMSTray struct {
	Name  string
	Color string // RRGGBBAA
	Empty bool
}

type AMSUnit struct {
	HumidityIndex int
	Trays         []AMSTray
}

type AMS struct {
	Units   []AMSUnit
	TrayNow int // -1 when no tray is loaded
}

// JobStatus is a snapshot of the printer taken on one poll tick.
type JobStatus struct {
	State            string
	Stage            string
	PrintType        string
	JobName          string
	Progress         int
	Layer            int
	TotalLayers      int
	RemainingMinutes int
	StartedAt        time.Time

	Nozzle Temperature
	Bed    Temperature

	// CoverRef identifies the cover image of the current job, empty when
	// there is no active job.
	CoverRef string

	AMS        AMS
	HMSErrors  []string
	PrintError int
}

// Active reports whether a job is in progress.
func (s JobStatus) Active() bool {
	switch s.State {
	case "", GcodeStateIdle, GcodeStateFinish, GcodeStateFailed:
		return false
	}
	return true
}

// StageLabel is the human readable stage, eg "heatbed_preheating" becomes
// "Heatbed Preheating".
func (s JobStatus) StageLabel() string {
	stage := s.Stage
	if strings.EqualFold(s.PrintType, "idle") {
		stage = s.PrintType
	}
	if stage == "" {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(stage, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
