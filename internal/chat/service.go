package chat

import (
	"context"
	"strings"
	"time"

	"cipher-chat/internal/db"
	"cipher-chat/internal/feed"
	"cipher-chat/internal/models"
	"cipher-chat/internal/naming"
	"cipher-chat/internal/roster"
	apperrors "cipher-chat/pkg/errors"
	"cipher-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxMessageBytes bounds the content of one message.
const MaxMessageBytes = 4000

// Directory resolves a shareable unique code to an account id.
type Directory interface {
	Resolve(ctx context.Context, callerID uuid.UUID, code string) (uuid.UUID, error)
}

// Publisher fans change events out to subscribers.
type Publisher interface {
	PublishAll(ctx context.Context, events ...feed.Event) error
}

type Service struct {
	repo      *Repository
	directory Directory
	feed      Publisher
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(repo *Repository, directory Directory, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		feed:      publisher,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// GetOrCreate returns the one direct chat between callerID and otherID,
// creating it on first use. Calls with the arguments swapped return the same
// chat, and so do concurrent calls from both sides.
func (s *Service) GetOrCreate(ctx context.Context, callerID, otherID uuid.UUID) (*models.ChatView, bool, error) {
	if callerID == otherID {
		return nil, false, apperrors.ErrSelfChat
	}

	chatID, err := s.repo.FindDirectChat(ctx, callerID, otherID)
	if err == nil {
		view, err := s.loadView(ctx, chatID)
		return view, false, err
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, s.storeError("finding direct chat", err)
	}

	chatID = uuid.New()
	err = s.repo.CreateDirectChat(ctx, chatID, callerID, otherID, s.now())
	if errors.Is(err, ErrConflictRetry) {
		s.logger.Debug("direct chat created concurrently, re-reading", "caller", callerID, "other", otherID)
		winner, err := s.repo.FindDirectChat(ctx, callerID, otherID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, false, apperrors.ErrChatInconsistent
			}
			return nil, false, s.storeError("re-reading direct chat", err)
		}
		view, err := s.loadView(ctx, winner)
		return view, false, err
	}
	if err != nil {
		return nil, false, s.storeError("creating direct chat", err)
	}

	view, err := s.loadView(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("direct chat created", "chat_id", chatID, "caller", callerID, "other", otherID)

	s.publish(ctx,
		feed.ChatCreated(*view, callerID),
		feed.ChatCreated(*view, otherID),
	)
	return view, true, nil
}

// OpenByCode resolves code through the directory and opens the direct chat
// with the account behind it.
func (s *Service) OpenByCode(ctx context.Context, callerID uuid.UUID, code string) (*models.ChatView, bool, error) {
	otherID, err := s.directory.Resolve(ctx, callerID, code)
	if err != nil {
		return nil, false, err
	}
	return s.GetOrCreate(ctx, callerID, otherID)
}

// Chat returns the chat as viewerID sees it.
func (s *Service) Chat(ctx context.Context, chatID, viewerID uuid.UUID) (*roster.Entry, error) {
	if err := s.authorize(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	view, err := s.loadView(ctx, chatID)
	if err != nil {
		return nil, err
	}
	entry := roster.EntryFor(*view, viewerID)
	return &entry, nil
}

// Roster loads every chat of viewerID. Chats whose participant set is
// inconsistent are left out and logged.
func (s *Service) Roster(ctx context.Context, viewerID uuid.UUID) (roster.Snapshot, error) {
	views, err := s.repo.ListChatViews(ctx, viewerID)
	if err != nil {
		return roster.Snapshot{}, s.storeError("listing chats", err)
	}

	valid := views[:0]
	for _, v := range views {
		if err := v.Validate(); err != nil {
			s.logger.Error("skipping inconsistent chat", "chat_id", v.ID, "err", err)
			continue
		}
		valid = append(valid, v)
	}
	return roster.New(viewerID, valid), nil
}

// Send appends text to the chat as given; whitespace-only text is rejected.
// The message and the chat summary are written together; publishing
// afterwards is best effort.
func (s *Service) Send(ctx context.Context, chatID, senderID uuid.UUID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return nil, apperrors.ErrMessageTooLong
	}
	if err := s.authorize(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not allocate message id", err)
	}
	msg := &models.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, s.storeError("inserting message", err)
	}

	events := []feed.Event{feed.MessageInserted(*msg)}
	participants, err := s.repo.ParticipantIDs(ctx, chatID)
	if err != nil {
		s.logger.Error("could not load participants for summary events", "chat_id", chatID, "err", err)
	}
	summary := models.ChatSummary{ChatID: chatID, LastMessage: msg.Content, LastMessageAt: msg.CreatedAt}
	for _, p := range participants {
		events = append(events, feed.ChatUpdated(summary, p))
	}
	s.publish(ctx, events...)

	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, chatID, viewerID uuid.UUID) ([]models.Message, error) {
	if err := s.authorize(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, s.storeError("listing messages", err)
	}
	return msgs, nil
}

// Rename sets the private label viewerID sees for the chat. A blank name
// clears it. Only the caller's own participant row is written.
func (s *Service) Rename(ctx context.Context, chatID, viewerID uuid.UUID, name string) (*roster.Entry, error) {
	custom, ok := naming.NormalizeCustom(name)
	if !ok {
		return nil, apperrors.ErrChatNameTooLong
	}

	if err := s.repo.RenameParticipant(ctx, chatID, viewerID, custom); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, apperrors.ErrChatNotFound
		case errors.Is(err, ErrNotParticipant):
			return nil, apperrors.ErrNotParticipant
		default:
			return nil, s.storeError("renaming participant", err)
		}
	}

	s.publish(ctx, feed.ParticipantRenamed(models.Rename{
		ChatID:     chatID,
		AccountID:  viewerID,
		CustomName: custom,
	}))

	view, err := s.loadView(ctx, chatID)
	if err != nil {
		return nil, err
	}
	entry := roster.EntryFor(*view, viewerID)
	return &entry, nil
}

// authorize distinguishes a missing chat from one the account is not part of.
func (s *Service) authorize(ctx context.Context, chatID, accountID uuid.UUID) error {
	ok, err := s.repo.IsParticipant(ctx, chatID, accountID)
	if err != nil {
		return s.storeError("checking participant", err)
	}
	if ok {
		return nil
	}

	exists, err := s.repo.ChatExists(ctx, chatID)
	if err != nil {
		return s.storeError("checking chat", err)
	}
	if !exists {
		return apperrors.ErrChatNotFound
	}
	return apperrors.ErrNotParticipant
}

func (s *Service) loadView(ctx context.Context, chatID uuid.UUID) (*models.ChatView, error) {
	view, err := s.repo.GetChatView(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, s.storeError("loading chat", err)
	}
	if err := view.Validate(); err != nil {
		s.logger.Error("inconsistent chat", "chat_id", chatID, "err", err)
		return nil, apperrors.ErrChatInconsistent
	}
	return view, nil
}

func (s *Service) publish(ctx context.Context, events ...feed.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishAll(ctx, events...); err != nil {
		s.logger.Error("failed to publish feed events", "count", len(events), "err", err)
	}
}

func (s *Service) storeError(op string, err error) error {
	s.logger.Error("store error", "op", op, "err", err)
	if db.IsUnavailable(err) {
		return apperrors.Unavailable(err)
	}
	return apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
}
