package consultation

import (
	"time"
)

type Consultation struct {
	ID               int64
	DoctorID         int64
	PatientID        int64
	Specialty        string
	AppointmentID    int64
	ConsultationDate time.Time
	Notes            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Filter picks consultations by one field; an empty filter lists all.
type Filter struct {
	PatientID     int64
	DoctorID      int64
	AppointmentID int64
}
