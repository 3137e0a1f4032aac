package telegram

import "time"

// SetRequestTimeouts shortens the per-request deadlines for tests.
func (c *Client) SetRequestTimeouts(pollMargin, send time.Duration) {
	c.pollMargin = pollMargin
	c.sendTimeout = send
}
