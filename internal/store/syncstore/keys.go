package syncstore

import "fmt"

// Key prefix for all board-related data.
const keyPrefix = "board"

// playerKey returns the Redis key for one player record.
func playerKey(id string) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// playersIndexKey returns the Redis key for the SET of player ids.
func playersIndexKey() string {
	return fmt.Sprintf("%s:idx:players", keyPrefix)
}

// historyKey returns the Redis key for the history LIST, newest first.
func historyKey() string {
	return fmt.Sprintf("%s:history", keyPrefix)
}

// changeChannel returns the pub/sub channel carrying per-record change
// messages for other clients.
func changeChannel() string {
	return fmt.Sprintf("%s:changes", keyPrefix)
}
