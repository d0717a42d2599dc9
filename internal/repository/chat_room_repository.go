package repository

import (
	"context"
	"database/sql"
)

// ChatRoomRepo creates the chat-room handle that accompanies every
// meeting.  Message transport is owned by the chat service; this
// repository only reserves the handle, inside the meeting-creation
// transaction so a meeting never exists without its room.
type ChatRoomRepo struct {
	db *sql.DB
}

// NewChatRoomRepo returns a new ChatRoomRepo bound to the given database.
func NewChatRoomRepo(db *sql.DB) *ChatRoomRepo { return &ChatRoomRepo{db: db} }

// CreateTx inserts the chat-room row for a meeting and returns its ID.
func (r *ChatRoomRepo) CreateTx(ctx context.Context, tx *sql.Tx, meetingID uint64) (uint64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO chat_rooms (meeting_id) VALUES (?)`, meetingID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
