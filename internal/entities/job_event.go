package entities

import "time"

type JobPhase string

const (
	JobPhaseIntake JobPhase = "intake"
	JobPhaseMap    JobPhase = "map"
	JobPhaseStage  JobPhase = "stage"
	JobPhaseCommit JobPhase = "commit"
	JobPhaseManual JobPhase = "manual"
)

type JobEventStatus string

const (
	JobEventSuccess JobEventStatus = "success"
	JobEventFailed  JobEventStatus = "failed"
)

// JobEvent is one entry of a job's history: a phase run and what it left behind.
type JobEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	JobID       uint           `gorm:"index" json:"job_id"`
	Phase       JobPhase       `gorm:"index;size:20" json:"phase"`
	FromStatus  JobStatus      `gorm:"size:20" json:"from_status,omitempty"`
	ToStatus    JobStatus      `gorm:"size:20" json:"to_status,omitempty"`
	Description string         `gorm:"size:500" json:"description"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON counters
	Status      JobEventStatus `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (JobEvent) TableName() string {
	return "import_job_events"
}
