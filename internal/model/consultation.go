package model

import "time"

// Consultation is the persisted record of one doctor/patient session.
type Consultation struct {
	ID        string             `db:"id" json:"id"`
	DoctorID  string             `db:"doctor_id" json:"doctorId"`
	PatientID string             `db:"patient_id" json:"patientId"`
	RoomName  *string            `db:"room_name" json:"roomName,omitempty"`
	RoomURL   *string            `db:"room_url" json:"roomUrl,omitempty"`
	Status    ConsultationStatus `db:"status" json:"status"`
	StartedAt time.Time          `db:"started_at" json:"startedAt"`
	EndedAt   *time.Time         `db:"ended_at" json:"endedAt,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `db:"updated_at" json:"updatedAt"`
}
