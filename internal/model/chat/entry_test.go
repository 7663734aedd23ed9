package chat

import (
	"testing"
	"time"
)

func TestEntryRoles(t *testing.T) {
	at := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)

	user := NewUserEntry("hi", "happy", at, "")
	if !user.IsUser() || user.Text() != "hi" {
		t.Fatalf("unexpected user entry: %+v", user)
	}
	if user.Timestamp != "03:04 PM" {
		t.Fatalf("unexpected timestamp: %s", user.Timestamp)
	}

	bot := NewBotEntry("hi", "hello!", "happy", at, "15:04")
	if bot.IsUser() || bot.Text() != "hello!" {
		t.Fatalf("unexpected bot entry: %+v", bot)
	}
	if bot.Timestamp != "15:04" {
		t.Fatalf("unexpected timestamp: %s", bot.Timestamp)
	}
}
