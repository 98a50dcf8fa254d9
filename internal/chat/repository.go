package chat

import (
	"context"
	"database/sql"
	"time"

	"cipher-chat/internal/db"
	"cipher-chat/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("chat not found")
	ErrNotParticipant = errors.New("account is not a participant of the chat")
	// ErrConflictRetry means another creator inserted the same pair first.
	// The service re-queries instead of surfacing it.
	ErrConflictRetry = errors.New("direct chat created concurrently")
)

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

// orderedPair puts two account ids in the fixed order used by the
// chats(account_low, account_high) constraint.
func orderedPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

// FindDirectChat returns the chat whose participant set is exactly {a, b}.
func (r *Repository) FindDirectChat(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	query := r.db.Rebind(`
		SELECT chat_id
		FROM chat_participants
		WHERE chat_id IN (SELECT chat_id FROM chat_participants WHERE account_id = ?)
		GROUP BY chat_id
		HAVING COUNT(*) = 2
		   AND SUM(CASE WHEN account_id = ? THEN 1 ELSE 0 END) = 1
		   AND SUM(CASE WHEN account_id = ? THEN 1 ELSE 0 END) = 1
		LIMIT 1
	`)

	var chatID uuid.UUID
	err := r.db.Conn.QueryRowContext(ctx, query, a, a, b).Scan(&chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, errors.Wrap(err, "chatRepo.FindDirectChat.Scan")
	}
	return chatID, nil
}

// CreateDirectChat inserts the chat and both participant rows in one
// transaction. When the pair already owns a chat nothing is written and
// ErrConflictRetry is returned.
func (r *Repository) CreateDirectChat(ctx context.Context, chatID, a, b uuid.UUID, at time.Time) error {
	low, high := orderedPair(a, b)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := r.db.Rebind(`
			INSERT INTO chats (id, account_low, account_high, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (account_low, account_high) DO NOTHING
			RETURNING id
		`)

		var inserted uuid.UUID
		if err := tx.QueryRowContext(ctx, query, chatID, low, high, at).Scan(&inserted); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrConflictRetry
			}
			if db.IsUniqueViolation(err) {
				return ErrConflictRetry
			}
			return errors.Wrap(err, "chatRepo.CreateDirectChat.InsertChat")
		}

		query = r.db.Rebind("INSERT INTO chat_participants (chat_id, account_id, joined_at) VALUES (?, ?, ?), (?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, chatID, a, at, chatID, b, at); err != nil {
			return errors.Wrap(err, "chatRepo.CreateDirectChat.InsertParticipants")
		}
		return nil
	})
}

const viewColumns = `
	c.id, c.created_at, c.last_message, c.last_message_at,
	p.account_id, p.custom_name, p.joined_at,
	pr.unique_code, pr.display_name, pr.created_at
`

const viewJoins = `
	FROM chats c
	LEFT JOIN chat_participants p ON p.chat_id = c.id
	LEFT JOIN profiles pr ON pr.account_id = p.account_id
`

// GetChatView loads a chat with its participants and their profiles.
func (r *Repository) GetChatView(ctx context.Context, chatID uuid.UUID) (*models.ChatView, error) {
	query := r.db.Rebind("SELECT" + viewColumns + viewJoins + "WHERE c.id = ? ORDER BY p.joined_at, p.account_id")

	rows, err := r.db.Conn.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.GetChatView.Query")
	}
	defer rows.Close()

	views, err := scanViews(rows)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.GetChatView.Scan")
	}
	if len(views) == 0 {
		return nil, ErrNotFound
	}
	return &views[0], nil
}

// ListChatViews loads every chat accountID participates in. Order is
// unspecified; the roster sorts.
func (r *Repository) ListChatViews(ctx context.Context, accountID uuid.UUID) ([]models.ChatView, error) {
	query := r.db.Rebind("SELECT" + viewColumns + viewJoins + `
		WHERE c.id IN (SELECT chat_id FROM chat_participants WHERE account_id = ?)
		ORDER BY c.id, p.joined_at, p.account_id`)

	rows, err := r.db.Conn.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListChatViews.Query")
	}
	defer rows.Close()

	views, err := scanViews(rows)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListChatViews.Scan")
	}
	return views, nil
}

// scanViews folds joined rows (one per participant) into chat views,
// keeping the order in which chats first appear.
func scanViews(rows *sql.Rows) ([]models.ChatView, error) {
	var views []models.ChatView
	index := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			chat          models.Chat
			lastMessage   sql.NullString
			lastMessageAt sql.NullTime
			accountID     uuid.NullUUID
			customName    sql.NullString
			joinedAt      sql.NullTime
			code          sql.NullString
			displayName   sql.NullString
			profileAt     sql.NullTime
		)
		if err := rows.Scan(
			&chat.ID, &chat.CreatedAt, &lastMessage, &lastMessageAt,
			&accountID, &customName, &joinedAt,
			&code, &displayName, &profileAt,
		); err != nil {
			return nil, err
		}

		i, ok := index[chat.ID]
		if !ok {
			chat.CreatedAt = chat.CreatedAt.UTC()
			if lastMessage.Valid {
				chat.LastMessage = &lastMessage.String
			}
			if lastMessageAt.Valid {
				t := lastMessageAt.Time.UTC()
				chat.LastMessageAt = &t
			}
			views = append(views, models.ChatView{Chat: chat})
			i = len(views) - 1
			index[chat.ID] = i
		}

		if !accountID.Valid {
			continue
		}
		pv := models.ParticipantView{
			Participant: models.Participant{
				ChatID:    chat.ID,
				AccountID: accountID.UUID,
				JoinedAt:  joinedAt.Time.UTC(),
			},
		}
		if customName.Valid {
			pv.CustomName = &customName.String
		}
		if code.Valid {
			pv.Profile = &models.Profile{
				AccountID:   accountID.UUID,
				UniqueCode:  code.String,
				DisplayName: displayName.String,
				CreatedAt:   profileAt.Time.UTC(),
			}
		}
		views[i].Participants = append(views[i].Participants, pv)
	}
	return views, rows.Err()
}

func (r *Repository) ChatExists(ctx context.Context, chatID uuid.UUID) (bool, error) {
	var exists bool
	query := r.db.Rebind("SELECT EXISTS(SELECT 1 FROM chats WHERE id = ?)")
	if err := r.db.Conn.QueryRowContext(ctx, query, chatID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "chatRepo.ChatExists.Scan")
	}
	return exists, nil
}

func (r *Repository) IsParticipant(ctx context.Context, chatID, accountID uuid.UUID) (bool, error) {
	var exists bool
	query := r.db.Rebind("SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = ? AND account_id = ?)")
	if err := r.db.Conn.QueryRowContext(ctx, query, chatID, accountID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "chatRepo.IsParticipant.Scan")
	}
	return exists, nil
}

func (r *Repository) ParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	query := r.db.Rebind("SELECT account_id FROM chat_participants WHERE chat_id = ? ORDER BY joined_at, account_id")
	rows, err := r.db.Conn.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ParticipantIDs.Query")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "chatRepo.ParticipantIDs.Scan")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RenameParticipant sets or clears (nil) the custom name on accountID's own
// participant row. Nothing else is touched.
func (r *Repository) RenameParticipant(ctx context.Context, chatID, accountID uuid.UUID, name *string) error {
	query := r.db.Rebind("UPDATE chat_participants SET custom_name = ? WHERE chat_id = ? AND account_id = ?")

	var value sql.NullString
	if name != nil {
		value = sql.NullString{String: *name, Valid: true}
	}

	res, err := r.db.Conn.ExecContext(ctx, query, value, chatID, accountID)
	if err != nil {
		return errors.Wrap(err, "chatRepo.RenameParticipant.Exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "chatRepo.RenameParticipant.RowsAffected")
	}
	if n > 0 {
		return nil
	}

	exists, err := r.ChatExists(ctx, chatID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotParticipant
}

// InsertMessage appends msg and advances the chat summary in the same
// transaction. The summary only moves forward in message time.
func (r *Repository) InsertMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := r.db.Rebind("INSERT INTO messages (id, chat_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.CreatedAt); err != nil {
			return errors.Wrap(err, "chatRepo.InsertMessage.Insert")
		}

		query = r.db.Rebind(`
			UPDATE chats SET last_message = ?, last_message_at = ?
			WHERE id = ? AND (last_message_at IS NULL OR last_message_at <= ?)
		`)
		if _, err := tx.ExecContext(ctx, query, msg.Content, msg.CreatedAt, msg.ChatID, msg.CreatedAt); err != nil {
			return errors.Wrap(err, "chatRepo.InsertMessage.UpdateSummary")
		}
		return nil
	})
}

// ListMessages returns the whole history of a chat, oldest first.
func (r *Repository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	query := r.db.Rebind(`
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC
	`)

	rows, err := r.db.Conn.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListMessages.Query")
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "chatRepo.ListMessages.Scan")
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
