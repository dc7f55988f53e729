package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/consultrelay/consult-relay-go/internal/database"
	"github.com/consultrelay/consult-relay-go/internal/model"
)

type MeetingRepository interface {
	FindByID(ctx context.Context, meetingID string) (*model.Meeting, error)
	// MarkEnded records the meeting as ended, creating it if the provider
	// never reported its start.
	MarkEnded(ctx context.Context, meetingID string, roomName *string, endedAt time.Time) (*model.Meeting, error)
	WithTx(tx *sqlx.Tx) MeetingRepository
}

type meetingRepo struct {
	db database.DBTX
}

func NewMeetingRepository(db *sqlx.DB) MeetingRepository {
	return &meetingRepo{db: db}
}

func (r *meetingRepo) WithTx(tx *sqlx.Tx) MeetingRepository {
	return &meetingRepo{db: tx}
}

func (r *meetingRepo) FindByID(ctx context.Context, meetingID string) (*model.Meeting, error) {
	var m model.Meeting
	err := r.db.GetContext(ctx, &m, `SELECT * FROM meetings WHERE meeting_id = $1`, meetingID)
	return HandleNotFound(&m, err)
}

func (r *meetingRepo) MarkEnded(ctx context.Context, meetingID string, roomName *string, endedAt time.Time) (*model.Meeting, error) {
	var m model.Meeting
	err := r.db.GetContext(ctx, &m, `
		INSERT INTO meetings (meeting_id, room_name, status, ended_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_id) DO UPDATE SET
			room_name = COALESCE(EXCLUDED.room_name, meetings.room_name),
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at
		RETURNING *
	`, meetingID, roomName, model.MeetingStatusEnded, endedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
