package models

import "time"

// ConversationSummary represents a row of conversation_metadata.
// User1ID is always the smaller of the two participant ids.
type ConversationSummary struct {
	ID                 int64      `json:"id"`
	User1ID            int64      `json:"user1_id"`
	User2ID            int64      `json:"user2_id"`
	CreatedAt          time.Time  `json:"created_at"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	LastMessageContent *string    `json:"last_message_content"`
}

// OtherUser returns the participant that is not userID.
func (c *ConversationSummary) OtherUser(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// UserConversation represents a row of conversations_by_user.
// A new row is inserted for every message, so one conversation can have many.
type UserConversation struct {
	UserID             int64     `json:"user_id"`
	LastMessageAt      time.Time `json:"last_message_at"`
	ConversationID     int64     `json:"conversation_id"`
	OtherUserID        int64     `json:"other_user_id"`
	LastMessageContent string    `json:"last_message_content"`
}

// ConversationView is a user's conversation list entry: the newest index row
// joined with the participants from the summary.
type ConversationView struct {
	ID                 int64     `json:"id"`
	User1ID            int64     `json:"user1_id"`
	User2ID            int64     `json:"user2_id"`
	OtherUserID        int64     `json:"other_user_id"` // the participant who is not the listing user
	LastMessageAt      time.Time `json:"last_message_at"`
	LastMessageContent string    `json:"last_message_content"`
}

// Page is one page of an offset-paginated listing.
type Page[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Data  []T `json:"data"`
}
