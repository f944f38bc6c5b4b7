package models

import "strings"

type Quote struct {
	ID         string   `json:"id"`
	Text       string   `json:"quote"`
	Author     string   `json:"author"`
	Categories []string `json:"categories"`
}

// Words splits the quote into the canonical word order racers must follow.
func (q *Quote) Words() []string {
	return strings.Fields(q.Text)
}
