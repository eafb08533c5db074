package scan

import (
	"time"

	"github.com/garyellow/osvita-occupancy/internal/occupancy"
)

// Phase is the lifecycle stage of a scan.
type Phase string

// Scan phases.
const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseScanning    Phase = "scanning"
	PhaseCompleted   Phase = "completed"
	PhaseCancelled   Phase = "cancelled"
	PhaseFailed      Phase = "failed"
)

// Running reports whether p is a non-terminal active phase.
func (p Phase) Running() bool {
	return p == PhaseDiscovering || p == PhaseScanning
}

// Terminal reports whether a scan in phase p has ended.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// Progress of the current phase.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Text    string `json:"text,omitempty"`
}

// State is a point-in-time copy of the controller state.
type State struct {
	ScanID     string             `json:"scan_id,omitempty"`
	Phase      Phase              `json:"phase"`
	Date       string             `json:"date,omitempty"`
	Progress   Progress           `json:"progress"`
	Entities   int                `json:"entities"`
	ErrorCount int                `json:"error_count"`
	Message    string             `json:"message,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Rooms      occupancy.Snapshot `json:"results"`
}

// Progress texts shown to users.
const (
	textDiscovering  = "Збір груп: перевірено %d з %d комбінацій..."
	textScanning     = "Сканування розкладу..."
	textNoEntities   = "Не вдалося знайти жодної групи."
	textReference    = "Не вдалося завантажити довідники факультетів, форм навчання та курсів."
	textCancelled    = "Сканування зупинено"
	textCompleted    = "Сканування завершено"
	textPersistError = "Результат не збережено"
)
