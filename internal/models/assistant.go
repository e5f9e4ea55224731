package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// ChatTurn is one role-tagged message exchanged with the generative model.
type ChatTurn struct {
	Role    string `bson:"role" json:"role"` // user|assistant
	Content string `bson:"content" json:"content"`
}

type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ConversationID string             `bson:"conversation_id" json:"id"` // uuid v4
	UserID         string             `bson:"user_id" json:"user_id"`
	Title          string             `bson:"title" json:"title"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

type AssistantMessage struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Role           string             `bson:"role" json:"role"`
	Content        string             `bson:"content" json:"content"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

func (m AssistantMessage) Turn() ChatTurn {
	return ChatTurn{Role: m.Role, Content: m.Content}
}
