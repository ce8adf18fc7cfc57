package model

import (
	"maps"
	"time"
)

// Feed info parameters set on every written dataset.
const (
	FeedCreationDate = "feed_creation_date"
	FeedCreationTime = "feed_creation_time"
)

// StampCreation returns a copy of infos whose creation date and time are t.
func StampCreation(infos map[string]string, t time.Time) map[string]string {
	stamped := make(map[string]string, len(infos)+2)
	maps.Copy(stamped, infos)
	stamped[FeedCreationDate] = t.Format("20060102")
	stamped[FeedCreationTime] = t.Format("15:04:05")
	return stamped
}
