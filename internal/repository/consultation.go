package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/consultrelay/consult-relay-go/internal/database"
	"github.com/consultrelay/consult-relay-go/internal/model"
)

type ConsultationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Consultation, error)
	FindByRoomName(ctx context.Context, roomName string) (*model.Consultation, error)
	// Upsert inserts the consultation or overwrites its mutable fields.
	Upsert(ctx context.Context, c model.Consultation) (*model.Consultation, error)
	WithTx(tx *sqlx.Tx) ConsultationRepository
}

type consultationRepo struct {
	db database.DBTX
}

func NewConsultationRepository(db *sqlx.DB) ConsultationRepository {
	return &consultationRepo{db: db}
}

func (r *consultationRepo) WithTx(tx *sqlx.Tx) ConsultationRepository {
	return &consultationRepo{db: tx}
}

func (r *consultationRepo) FindByID(ctx context.Context, id string) (*model.Consultation, error) {
	var c model.Consultation
	err := r.db.GetContext(ctx, &c, `SELECT * FROM consultations WHERE id = $1`, id)
	return HandleNotFound(&c, err)
}

func (r *consultationRepo) FindByRoomName(ctx context.Context, roomName string) (*model.Consultation, error) {
	var c model.Consultation
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM consultations
		WHERE room_name = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, roomName)
	return HandleNotFound(&c, err)
}

func (r *consultationRepo) Upsert(ctx context.Context, c model.Consultation) (*model.Consultation, error) {
	var saved model.Consultation
	err := r.db.GetContext(ctx, &saved, `
		INSERT INTO consultations (id, doctor_id, patient_id, room_name, room_url, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			room_name = COALESCE(EXCLUDED.room_name, consultations.room_name),
			room_url = COALESCE(EXCLUDED.room_url, consultations.room_url),
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			updated_at = NOW()
		RETURNING *
	`, c.ID, c.DoctorID, c.PatientID, c.RoomName, c.RoomURL, c.Status, c.StartedAt, c.EndedAt)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
