package repository

import (
	"context"

	"nftflip/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomEventRepository struct {
	db *pgxpool.Pool
}

func NewRoomEventRepository(db *pgxpool.Pool) *RoomEventRepository {
	return &RoomEventRepository{db: db}
}

func (r *RoomEventRepository) Append(ctx context.Context, matchID, eventType string, payload []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO room_events (match_id, type, payload)
		VALUES ($1, $2, $3)
	`, matchID, eventType, payload)
	return err
}

// RecentByMatch returns the latest events for a match in chronological
// order, replayed to a connection when it joins the room.
func (r *RoomEventRepository) RecentByMatch(ctx context.Context, matchID string, limit int) ([]domain.RoomEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, match_id, type, payload, created_at
		FROM (
			SELECT id, match_id, type, payload, created_at
			FROM room_events
			WHERE match_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`, matchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.RoomEvent
	for rows.Next() {
		var ev domain.RoomEvent
		if err := rows.Scan(&ev.ID, &ev.MatchID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
