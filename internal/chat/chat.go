// Package chat holds the domain types shared by the session, connection and
// conversation components.
package chat

import (
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAdmin  Sender = "admin"
	SenderSystem Sender = "system"
)

// Rating is the user's feedback on an admin message.
type Rating string

const (
	RatingNone    Rating = "NONE"
	RatingLike    Rating = "LIKE"
	RatingDislike Rating = "DISLIKE"
)

// ParseRating accepts NONE/LIKE/DISLIKE in any case.
func ParseRating(s string) (Rating, bool) {
	switch Rating(strings.ToUpper(strings.TrimSpace(s))) {
	case RatingNone:
		return RatingNone, true
	case RatingLike:
		return RatingLike, true
	case RatingDislike:
		return RatingDislike, true
	}
	return "", false
}

// Message is one entry of the conversation. Insertion order is conversation order
// and ID is the only de-duplication key.
type Message struct {
	ID                              string `json:"id"`
	Content                         string `json:"content"`
	Sender                          Sender `json:"sender"`
	CreatedAt                       string `json:"createdAt"`
	Rating                          Rating `json:"rating,omitempty"`
	IsFirstMessageAfterRegistration *bool  `json:"isFirstMessageAfterRegistration,omitempty"`
}

// Timestamp formats t the way the backend expects createdAt values.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Credentials are what the user types into the login or signup form.
// Email is only sent on signup.
type Credentials struct {
	Phone    string
	Password string
	Email    string
}

// Complete reports whether both phone and password are present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Phone) != "" && c.Password != ""
}
