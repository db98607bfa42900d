package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// AppointmentCreatedPayload is broadcast once per committed appointment.
type AppointmentCreatedPayload struct {
	AppointmentID int64     `json:"appointmentId"`
	DoctorID      int64     `json:"doctorId"`
	DoctorName    string    `json:"doctorName,omitempty"`
	PatientID     int64     `json:"patientId"`
	Specialty     string    `json:"specialty"`
	Date          time.Time `json:"date"`
	Status        string    `json:"status"`
}

// legacyAppointmentCreated covers producers that still send rdvId and the
// speciality spelling.
type legacyAppointmentCreated struct {
	RdvID      int64  `json:"rdvId"`
	Speciality string `json:"speciality"`
}

func DecodeAppointmentCreated(raw json.RawMessage) (AppointmentCreatedPayload, error) {
	var p AppointmentCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return AppointmentCreatedPayload{}, fmt.Errorf("decode %s payload: %w", AppointmentCreated, err)
	}

	if p.AppointmentID == 0 || p.Specialty == "" {
		var legacy legacyAppointmentCreated
		if err := json.Unmarshal(raw, &legacy); err == nil {
			if p.AppointmentID == 0 {
				p.AppointmentID = legacy.RdvID
			}
			if p.Specialty == "" {
				p.Specialty = legacy.Speciality
			}
		}
	}

	return p, nil
}
