package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/providers/llm"
	"github.com/yoockh/vaihub/internal/providers/stt"
	mongorepo "github.com/yoockh/vaihub/internal/repositories/mongo"
	"github.com/yoockh/vaihub/internal/utils"
)

const (
	conversationTitleRunes = 50
	assistantHistoryLimit  = 40
	maxAudioBytes          = 10 << 20
)

type SendResult struct {
	Conversation     models.Conversation     `json:"conversation"`
	UserMessage      models.AssistantMessage `json:"user_message"`
	AssistantMessage models.AssistantMessage `json:"assistant_message"`
}

type AssistantService interface {
	// Reply answers a client-held transcript without storing anything.
	Reply(ctx context.Context, turns []models.ChatTurn) (models.ChatTurn, error)
	Stream(ctx context.Context, turns []models.ChatTurn) (<-chan string, <-chan error, error)
	// Send stores the user turn, asks the model with the stored history and
	// stores the answer. conversationID may be empty to start a conversation.
	Send(ctx context.Context, userID, conversationID, content string) (*SendResult, error)
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
	Messages(ctx context.Context, userID, conversationID string) ([]models.AssistantMessage, error)
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

type assistantService struct {
	repo    mongorepo.AssistantRepository
	llm     llm.Provider
	stt     stt.Provider
	system  string
	timeout time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

type AssistantOptions struct {
	SystemPrompt string
	Timeout      time.Duration
	Logger       *logrus.Logger
}

func NewAssistantService(repo mongorepo.AssistantRepository, model llm.Provider, speech stt.Provider, opts AssistantOptions) AssistantService {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &assistantService{
		repo:    repo,
		llm:     model,
		stt:     speech,
		system:  opts.SystemPrompt,
		timeout: opts.Timeout,
		log:     opts.Logger,
		now:     time.Now,
	}
}

func validateTurns(op string, turns []models.ChatTurn) error {
	if len(turns) == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "messages are required", nil)
	}
	for _, t := range turns {
		if t.Role != models.TurnUser && t.Role != models.TurnAssistant {
			return utils.E(utils.CodeInvalidArgument, op, "message role must be user or assistant", nil)
		}
	}
	if err := llm.CheckTurns(turns); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "last message must be a non-empty user message", err)
	}
	return nil
}

func (s *assistantService) Reply(ctx context.Context, turns []models.ChatTurn) (models.ChatTurn, error) {
	const op = "AssistantService.Reply"

	if err := validateTurns(op, turns); err != nil {
		return models.ChatTurn{}, err
	}
	text, err := s.complete(ctx, op, turns)
	if err != nil {
		return models.ChatTurn{}, err
	}
	return models.ChatTurn{Role: models.TurnAssistant, Content: text}, nil
}

func (s *assistantService) Stream(ctx context.Context, turns []models.ChatTurn) (<-chan string, <-chan error, error) {
	const op = "AssistantService.Stream"

	if err := validateTurns(op, turns); err != nil {
		return nil, nil, err
	}
	if s.llm == nil {
		return nil, nil, utils.E(utils.CodeUnavailable, op, "assistant is not configured", nil)
	}
	chunks, errs := s.llm.Stream(ctx, s.system, turns)
	return chunks, errs, nil
}

func (s *assistantService) complete(ctx context.Context, op string, turns []models.ChatTurn) (string, error) {
	if s.llm == nil {
		return "", utils.E(utils.CodeUnavailable, op, "assistant is not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.llm.Complete(ctx, s.system, turns)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", utils.E(utils.CodeTimeout, op, "assistant timed out", err)
	}
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "assistant is unavailable", err)
	}
	return text, nil
}

func (s *assistantService) Send(ctx context.Context, userID, conversationID, content string) (*SendResult, error) {
	const op = "AssistantService.Send"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message cannot be empty", nil)
	}

	var conv *models.Conversation
	if conversationID == "" {
		conv = &models.Conversation{
			ConversationID: uuid.NewString(),
			UserID:         userID,
			Title:          conversationTitle(content),
			CreatedAt:      s.now().UTC(),
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to create conversation", err)
		}
	} else {
		var err error
		if conv, err = s.owned(ctx, op, userID, conversationID); err != nil {
			return nil, err
		}
	}

	userMsg := &models.AssistantMessage{
		ConversationID: conv.ConversationID,
		Role:           models.TurnUser,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store message", err)
	}

	history, err := s.repo.ListMessages(ctx, conv.ConversationID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load conversation", err)
	}
	turns := make([]models.ChatTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, m.Turn())
	}
	if len(turns) > assistantHistoryLimit {
		turns = turns[len(turns)-assistantHistoryLimit:]
	}

	// a failed answer leaves the user turn stored; resending is the retry
	text, err := s.complete(ctx, op, turns)
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", conv.ConversationID).Warn("assistant reply failed")
		return nil, err
	}

	reply := &models.AssistantMessage{
		ConversationID: conv.ConversationID,
		Role:           models.TurnAssistant,
		Content:        text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, reply); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store reply", err)
	}

	return &SendResult{Conversation: *conv, UserMessage: *userMsg, AssistantMessage: *reply}, nil
}

func conversationTitle(content string) string {
	r := []rune(content)
	if len(r) > conversationTitleRunes {
		r = r[:conversationTitleRunes]
	}
	return string(r)
}

func (s *assistantService) owned(ctx context.Context, op, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}
	// other users' conversations look absent
	if conv.UserID != userID {
		return nil, utils.E(utils.CodeNotFound, op, "conversation not found", nil)
	}
	return conv, nil
}

func (s *assistantService) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	const op = "AssistantService.Conversations"

	out, err := s.repo.ListConversations(ctx, userID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return out, nil
}

func (s *assistantService) Messages(ctx context.Context, userID, conversationID string) ([]models.AssistantMessage, error) {
	const op = "AssistantService.Messages"

	if _, err := s.owned(ctx, op, userID, conversationID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	return out, nil
}

func (s *assistantService) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	const op = "AssistantService.Transcribe"

	if s.stt == nil {
		return "", utils.E(utils.CodeUnavailable, op, "voice input is not configured", nil)
	}
	if len(audio) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}
	if len(audio) > maxAudioBytes {
		return "", utils.E(utils.CodeInvalidArgument, op, "audio must be 10MB or smaller", nil)
	}

	text, conf, err := s.stt.Transcribe(ctx, audio, language)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "transcription failed", err)
	}
	s.log.WithField("confidence", conf).Debug("voice prompt transcribed")
	return text, nil
}
