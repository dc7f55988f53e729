package model

type UserRole string

const (
	UserRoleDoctor  UserRole = "doctor"
	UserRolePatient UserRole = "patient"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleDoctor || r == UserRolePatient
}

type ConsultationStatus string

const (
	ConsultationStatusScheduled ConsultationStatus = "scheduled"
	ConsultationStatusActive    ConsultationStatus = "active"
	ConsultationStatusEnded     ConsultationStatus = "ended"
)

type MeetingStatus string

const (
	MeetingStatusOngoing MeetingStatus = "ongoing"
	MeetingStatusEnded   MeetingStatus = "ended"
)
