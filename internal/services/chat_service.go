package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/realtime"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/utils"
)

const (
	chatTable        = "messages"
	chatHistoryLimit = 50
	maxMessageLength = 2000
)

type ChatService interface {
	// Latest returns the most recent messages, oldest first.
	Latest(ctx context.Context) ([]models.MessageWithAuthor, error)
	Send(ctx context.Context, userID, content string) (*models.MessageWithAuthor, error)
	Delete(ctx context.Context, userID string, messageID int64) error
}

type chatService struct {
	messages pgrepo.MessageRepository
	profiles pgrepo.ProfileRepository
	feed     realtime.Publisher
	log      *logrus.Logger
	now      func() time.Time
}

func NewChatService(messages pgrepo.MessageRepository, profiles pgrepo.ProfileRepository, feed realtime.Publisher, log *logrus.Logger) ChatService {
	if log == nil {
		log = logger.Discard()
	}
	return &chatService{messages: messages, profiles: profiles, feed: feed, log: log, now: time.Now}
}

func (s *chatService) Latest(ctx context.Context) ([]models.MessageWithAuthor, error) {
	const op = "ChatService.Latest"

	rows, err := s.messages.Latest(ctx, chatHistoryLimit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load messages", err)
	}

	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ProfileID)
	}
	authors, err := s.profiles.Summaries(ctx, ids)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load authors", err)
	}

	out := make([]models.MessageWithAuthor, len(rows))
	for i, m := range rows {
		// repository order is newest first
		out[len(rows)-1-i] = models.MessageWithAuthor{Message: m, Author: authors[m.ProfileID]}
	}
	return out, nil
}

func (s *chatService) Send(ctx context.Context, userID, content string) (*models.MessageWithAuthor, error) {
	const op = "ChatService.Send"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message cannot be empty", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is too long", nil)
	}

	m := &models.Message{ProfileID: userID, Content: content, CreatedAt: s.now().UTC()}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to send message", err)
	}

	out := &models.MessageWithAuthor{Message: *m}
	if authors, err := s.profiles.Summaries(ctx, []string{userID}); err == nil {
		out.Author = authors[userID]
	}

	s.publish(ctx, realtime.EventInsert, out, nil)
	return out, nil
}

// Delete is allowed for the author and for admins. The admin check reads the
// current role row.
func (s *chatService) Delete(ctx context.Context, userID string, messageID int64) error {
	const op = "ChatService.Delete"

	m, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeNotFound, op, "message not found", err)
	}
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to get message", err)
	}

	if m.ProfileID != userID {
		role, err := s.profiles.RoleOf(ctx, userID)
		if err != nil && !errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeInternal, op, "failed to check role", err)
		}
		if role != models.RoleAdmin {
			return utils.E(utils.CodeForbidden, op, "you can only delete your own messages", nil)
		}
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "message not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete message", err)
	}

	s.publish(ctx, realtime.EventDelete, nil, map[string]int64{"id": messageID})
	return nil
}

func (s *chatService) publish(ctx context.Context, eventType string, newRow, oldRow any) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, chatTable, eventType, newRow, oldRow); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("chat change event publish failed")
	}
}
