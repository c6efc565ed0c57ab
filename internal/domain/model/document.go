package model

import "time"

type ProcessingStatus string

const (
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// legalTransitions is the forward edge set of the processing lifecycle.
// failed -> queued exists only here; callers gate it behind an explicit
// operator retry.
var legalTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusUploaded:   {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusFailed:     {StatusQueued},
	StatusCompleted:  {},
}

// CanTransition reports whether moving from -> to is a legal lifecycle edge.
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is the processing-relevant subset of the document entity.
// Progress is meaningful only while queued/processing; CurrentOperation is
// empty outside queued/processing; ProcessingError is empty outside failed.
type Document struct {
	ID               string
	Status           ProcessingStatus
	Progress         int
	CurrentOperation string
	ProcessingError  string
	OCRText          string
	ConfidenceScore  float64
	Metadata         map[string]string
	ExternalTaskID   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanRetry reports whether an operator retry is accepted for the document.
func (d *Document) CanRetry() bool {
	return d.Status == StatusFailed
}

// Clone returns a deep copy so state-machine mutations never alias the
// caller's view of the record.
func (d *Document) Clone() *Document {
	cp := *d
	if d.Metadata != nil {
		cp.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
