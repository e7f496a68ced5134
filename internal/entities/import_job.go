package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusProcessing JobStatus = "processing"
	JobStatusProcessed  JobStatus = "processed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusImported   JobStatus = "imported"
)

// jobTransitions lists every edge of the job state machine.
// processed -> processed is a committer pass that left lines behind.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusUploaded:   {JobStatusProcessing},
	JobStatusProcessing: {JobStatusProcessed, JobStatusFailed},
	JobStatusProcessed:  {JobStatusImported, JobStatusProcessed},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave s.
func (s JobStatus) IsTerminal() bool {
	return len(jobTransitions[s]) == 0
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusUploaded, JobStatusProcessing, JobStatusProcessed, JobStatusFailed, JobStatusImported:
		return true
	}
	return false
}

type LineStatus string

const (
	LineStatusImport   LineStatus = "import"
	LineStatusIgnore   LineStatus = "ignore"
	LineStatusImported LineStatus = "imported"
)

func (s LineStatus) Valid() bool {
	switch s {
	case LineStatusImport, LineStatusIgnore, LineStatusImported:
		return true
	}
	return false
}

type SourceFormat string

const (
	SourceFormatCSV  SourceFormat = "csv"
	SourceFormatXLSX SourceFormat = "xlsx"
	SourceFormatXML  SourceFormat = "xml"
)

// IgnoreField is the column map target for headers that bind to no field.
const IgnoreField = "ignore"

// ColumnBinding binds one source header to a resource field (or IgnoreField).
type ColumnBinding struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

// ColumnMap is ordered by source column position.
type ColumnMap []ColumnBinding

// Headers returns the header text of every binding in column order.
func (m ColumnMap) Headers() []string {
	headers := make([]string, len(m))
	for i, b := range m {
		headers[i] = b.Header
	}
	return headers
}

// ImportJob is one ingestion attempt of one source file against one resource.
type ImportJob struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Module        string         `gorm:"size:64;not null;index:idx_import_job_resource" json:"module"`
	Resource      string         `gorm:"size:64;not null;index:idx_import_job_resource" json:"resource"`
	SourceFile    string         `gorm:"size:1024;not null" json:"source_file"`
	SourceFormat  SourceFormat   `gorm:"size:10;not null;default:'csv'" json:"source_format"`
	Delimiter     string         `gorm:"size:4" json:"delimiter,omitempty"`
	Quote         string         `gorm:"size:4" json:"quote,omitempty"`
	SourceDigest  string         `gorm:"size:128" json:"source_digest,omitempty"`
	ColumnMap     datatypes.JSON `json:"column_map,omitempty"`
	Status        JobStatus      `gorm:"size:20;not null;index" json:"status"`
	FailureReason string         `gorm:"type:text" json:"failure_reason,omitempty"`
	Lines         []ImportLine   `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (ImportJob) TableName() string {
	return "import_job"
}

// TableKey returns the "<module>_<resource>" name used for stylesheets and logs.
func (j *ImportJob) TableKey() string {
	return j.Module + "_" + j.Resource
}

// HasColumnMap reports whether a column map has been frozen into the job.
func (j *ImportJob) HasColumnMap() bool {
	return len(j.ColumnMap) > 0 && string(j.ColumnMap) != "null"
}

// GetColumnMap decodes the frozen column map.
func (j *ImportJob) GetColumnMap() (ColumnMap, error) {
	if !j.HasColumnMap() {
		return nil, nil
	}
	var m ColumnMap
	if err := json.Unmarshal(j.ColumnMap, &m); err != nil {
		return nil, fmt.Errorf("decode column map of job %d: %w", j.ID, err)
	}
	return m, nil
}

// EncodeColumnMap converts a column map into its stored form.
func EncodeColumnMap(m ColumnMap) (datatypes.JSON, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// ImportLine is the staged form of one data row of a job.
type ImportLine struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	JobID     uint       `gorm:"not null;index:idx_import_line_job" json:"job_id"`
	LineNo    int        `gorm:"not null;index:idx_import_line_job" json:"line_no"`
	Data      []byte     `json:"-"`
	Valid     bool       `json:"valid"`
	Errors    string     `gorm:"type:text" json:"errors,omitempty"`
	Status    LineStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (ImportLine) TableName() string {
	return "import_line"
}
