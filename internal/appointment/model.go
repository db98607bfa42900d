package appointment

import (
	"time"
)

type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports membership in the status enum. Any member may follow any
// other.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusDone, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID        int64
	Date      time.Time
	DoctorID  int64
	Specialty string
	PatientID int64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProviderSummary struct {
	ID        int64
	Name      string
	Specialty string
}

// Booking is what a successful booking returns: the committed appointment
// and the provider it was assigned to.
type Booking struct {
	Appointment Appointment
	Provider    ProviderSummary
}

type CreateRequest struct {
	Date      time.Time
	Specialty string
	PatientID int64
}

// Filter selects appointments by at most one of its fields; zero values are
// unset.
type Filter struct {
	PatientID int64
	DoctorID  int64
	Status    Status
}

func (f Filter) empty() bool {
	return f.PatientID == 0 && f.DoctorID == 0 && f.Status == ""
}
