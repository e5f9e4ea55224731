package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AssistantRepository interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int64) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.AssistantMessage) error
	ListMessages(ctx context.Context, conversationID string, limit int64) ([]models.AssistantMessage, error)
}

type assistantRepo struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewAssistantRepo(db *mongo.Database) AssistantRepository {
	return &assistantRepo{
		conversations: db.Collection("ai_conversations"),
		messages:      db.Collection("ai_messages"),
	}
}

func (r *assistantRepo) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.conversations.InsertOne(ctx, c)
	return err
}

func (r *assistantRepo) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var c models.Conversation
	err := r.conversations.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *assistantRepo) ListConversations(ctx context.Context, userID string, limit int64) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.conversations.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assistantRepo) AppendMessage(ctx context.Context, m *models.AssistantMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.messages.InsertOne(ctx, m)
	return err
}

// ListMessages returns a conversation oldest first.
func (r *assistantRepo) ListMessages(ctx context.Context, conversationID string, limit int64) ([]models.AssistantMessage, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.messages.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.AssistantMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
