package model

import "time"

type BotUser struct {
	ID           string
	TelegramID   int64
	Name         string
	Username     string
	BirthDate    string
	BirthCity    string
	Timezone     string
	ZodiacSign   string
	IsPremium    bool
	LastActive   time.Time
	CreatedAt    time.Time
	MessageCount int
}

// Valid reports whether the record carries enough data to be targeted by a broadcast.
func (u BotUser) Valid() bool {
	return u.TelegramID > 0 && !u.LastActive.IsZero()
}

// Roster is a snapshot of bot users plus the number of persisted records that could not be read.
type Roster struct {
	Users   []BotUser
	Skipped int
}
