package datastore

import "time"

// SessionRecord is one finished session.
type SessionRecord struct {
	ID              uint      `gorm:"primaryKey"`
	SessionID       string    `gorm:"uniqueIndex;not null"`
	Mode            string    `gorm:"index"`
	StartedAt       time.Time `gorm:"index"`
	FinishedAt      time.Time
	PipelineVersion string
	Fingerprint     string `gorm:"index"`
	Cancelled       bool
	LogPath         string

	Forms     int
	Processed int
	Failed    int
	Skipped   int
	Flagged   int
	Degraded  int
	Examples  int

	Outcomes    []FormRecord    `gorm:"foreignKey:SessionRecordID;constraint:OnDelete:CASCADE"`
	ExampleSets []ExampleRecord `gorm:"foreignKey:SessionRecordID;constraint:OnDelete:CASCADE"`
}

func (SessionRecord) TableName() string { return "sessions" }

// FormRecord is the outcome of one form in a session.
type FormRecord struct {
	ID              uint `gorm:"primaryKey"`
	SessionRecordID uint `gorm:"index;not null"`
	Position        int
	Path            string `gorm:"index"`
	Status          string `gorm:"index;type:varchar(16)"`
	Error           string `gorm:"type:text"`
	ErrorCategory   string `gorm:"type:varchar(32)"`
	BoundarySource  string `gorm:"type:varchar(16)"`
	Header          string
	Regions         int
	DurationMS      int64
}

func (FormRecord) TableName() string { return "form_outcomes" }

// ExampleRecord counts the training examples written for one labeled region.
type ExampleRecord struct {
	ID              uint   `gorm:"primaryKey"`
	SessionRecordID uint   `gorm:"index;not null"`
	FormPath        string `gorm:"index"`
	Sample          int
	Attribute       string
	Rating          int `gorm:"index"`
	Count           int
}

func (ExampleRecord) TableName() string { return "examples" }
