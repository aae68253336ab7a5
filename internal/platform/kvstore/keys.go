package kvstore

import "fmt"

const (
	InvalidationChannel = "cache:invalidation"
	UpdateChannel       = "recommendation:update"

	LaneHigh   = "high"
	LaneNormal = "normal"
)

func RecommendationKey(userID int64) string  { return fmt.Sprintf("rec:user:%d", userID) }
func BlacklistKey(userID int64) string       { return fmt.Sprintf("blacklist:user:%d", userID) }
func ClickCountKey(userID int64) string      { return fmt.Sprintf("clicks:user:%d", userID) }
func CategoryDislikeKey(userID int64) string { return fmt.Sprintf("dislike:category:user:%d", userID) }
func AuthorDislikeKey(userID int64) string   { return fmt.Sprintf("dislike:author:user:%d", userID) }

func ExposureCountKey(userID, bookID int64) string {
	return fmt.Sprintf("exposure:user:%d:book:%d", userID, bookID)
}

// QueueKey is the durable list backing a pub/sub channel. Each priority lane
// gets its own list.
func QueueKey(channel, lane string) string {
	return "queue:" + channel + ":" + lane
}
