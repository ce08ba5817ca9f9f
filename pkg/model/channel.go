package model

import "time"

// Channel is one chat channel as reported by the query provider.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Message is one channel message with its thread replies flattened in.
type Message struct {
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Replies   []string  `json:"thread_replies,omitempty"`
}

// ChannelActivity is one channel a user has posted in, with post count.
type ChannelActivity struct {
	Channel   string `json:"channel"`
	PostCount int    `json:"post_count"`
}
