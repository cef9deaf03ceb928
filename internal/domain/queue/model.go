package queue

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type TokenStatus string

const (
	StatusUpcoming   TokenStatus = "UPCOMING"
	StatusInProgress TokenStatus = "IN_PROGRESS"
	StatusCompleted  TokenStatus = "COMPLETED"
	StatusMissed     TokenStatus = "MISSED"
	StatusCancelled  TokenStatus = "CANCELLED"
)

// TokenSource records how a token entered the queue.
type TokenSource string

const (
	SourceOnline  TokenSource = "ONLINE"
	SourceOffline TokenSource = "OFFLINE"
)

// Availability is the capacity record for one doctor on one calendar date.
type Availability struct {
	DoctorID          uuid.UUID  `json:"doctor_id"`
	Date              civil.Date `json:"date"`
	TotalTokenCount   int        `json:"total_token_count"`
	FilledTokenCount  int        `json:"filled_token_count"`
	ConsultationsDone int        `json:"consultations_done"`
	IsLeave           bool       `json:"is_leave"`
	IsStopped         bool       `json:"is_stopped"`
	IsPaused          bool       `json:"is_paused"`
	PauseReason       *string    `json:"pause_reason,omitempty"`
	// Configured is false for a date nobody has written to yet.
	Configured bool      `json:"configured"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AvailableTokens is the remaining bookable capacity. It is zero while the
// doctor is on leave or the day is stopped.
func (a *Availability) AvailableTokens() int {
	if a.IsLeave || a.IsStopped {
		return 0
	}
	if n := a.TotalTokenCount - a.FilledTokenCount; n > 0 {
		return n
	}
	return 0
}

func absentAvailability(doctorID uuid.UUID, date civil.Date) *Availability {
	return &Availability{DoctorID: doctorID, Date: date}
}

// CapacityConfig is the writable configuration part of an Availability row.
type CapacityConfig struct {
	TotalTokenCount int  `json:"total_token_count"`
	IsStopped       bool `json:"is_stopped"`
	IsLeave         bool `json:"is_leave"`
}

type Token struct {
	ID                uuid.UUID   `json:"id"`
	DoctorID          uuid.UUID   `json:"doctor_id"`
	Date              civil.Date  `json:"date"`
	QueueNumber       int         `json:"queue_number"`
	PatientID         *uuid.UUID  `json:"patient_id,omitempty"`
	PatientName       string      `json:"patient_name"`
	PatientMobile     string      `json:"patient_mobile"`
	Description       *string     `json:"description,omitempty"`
	Status            TokenStatus `json:"status"`
	Source            TokenSource `json:"source"`
	ConsultationNotes *string     `json:"consultation_notes,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (t *Token) clone() *Token {
	cp := *t
	if t.PatientID != nil {
		id := *t.PatientID
		cp.PatientID = &id
	}
	if t.Description != nil {
		d := *t.Description
		cp.Description = &d
	}
	if t.ConsultationNotes != nil {
		n := *t.ConsultationNotes
		cp.ConsultationNotes = &n
	}
	return &cp
}

// PatientInfo is what a caller supplies when booking a token.
type PatientInfo struct {
	PatientID   *uuid.UUID  `json:"patient_id,omitempty"`
	Name        string      `json:"name"`
	Mobile      string      `json:"mobile"`
	Description string      `json:"description,omitempty"`
	Source      TokenSource `json:"source,omitempty"`
}

type LeaveRange struct {
	StartDate civil.Date `json:"start_date"`
	EndDate   civil.Date `json:"end_date"`
}

type LeaveSummary struct {
	Ranges []LeaveRange `json:"ranges"`
	Dates  []civil.Date `json:"dates"`
}

type DayCounts struct {
	Total      int `json:"total_tokens"`
	Upcoming   int `json:"upcoming_tokens"`
	InProgress int `json:"in_progress_tokens"`
	Completed  int `json:"completed_tokens"`
	Missed     int `json:"missed_tokens"`
	Cancelled  int `json:"cancelled_tokens"`
}

// DoctorDay is the per-doctor "today" view.
type DoctorDay struct {
	DoctorID                  uuid.UUID     `json:"doctor_id"`
	DoctorName                string        `json:"doctor_name"`
	Specializations           []string      `json:"specializations,omitempty"`
	Date                      civil.Date    `json:"date"`
	Availability              *Availability `json:"availability"`
	AvailableTokens           int           `json:"available_tokens"`
	Counts                    DayCounts     `json:"counts"`
	CurrentConsultationNumber int           `json:"current_consultation_number"`
	Upcoming                  []*Token      `json:"upcoming,omitempty"`
	InProgress                []*Token      `json:"in_progress,omitempty"`
	Completed                 []*Token      `json:"completed,omitempty"`
	Missed                    []*Token      `json:"missed,omitempty"`
	Cancelled                 []*Token      `json:"cancelled,omitempty"`
}

type SpecializationDay struct {
	Name              string `json:"name"`
	Doctors           int    `json:"doctors"`
	Appointments      int    `json:"appointments"`
	ConsultationsDone int    `json:"consultations_done"`
}

// HospitalDay aggregates DoctorDay summaries for every doctor of a hospital.
type HospitalDay struct {
	HospitalID        uuid.UUID           `json:"hospital_id"`
	HospitalName      string              `json:"hospital_name"`
	Date              civil.Date          `json:"date"`
	Appointments      int                 `json:"appointments"`
	ConsultationsDone int                 `json:"consultations_done"`
	Doctors           []*DoctorDay        `json:"doctors"`
	Specializations   []SpecializationDay `json:"specializations"`
}
