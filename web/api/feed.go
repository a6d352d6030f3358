package api

// Feed message types sent over /ws/members
const (
	FeedViewLatest    = "view.latest"
	FeedViewPublished = "view.published"
)

// FeedMessage is one websocket frame of the members feed. Payload is a viewbus.Latest for
// view.latest and a viewbus.Message for view.published.
type FeedMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
