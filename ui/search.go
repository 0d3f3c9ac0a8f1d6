package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"nutribot/model"
)

const previewWidth = 60

// conversationMatch is one entry of the conversation filter
type conversationMatch struct {
	ConversationID string
	Title          string
	// Preview is an excerpt of the first matching message; empty for
	// title matches
	Preview string
	// TitleIndexes are the byte offsets of the title runes that matched
	TitleIndexes []int
}

type titleSource []model.Conversation

func (s titleSource) String(i int) string { return s[i].Title }
func (s titleSource) Len() int            { return len(s) }

// searchConversations matches the query fuzzily against titles, best first,
// then lists conversations whose messages contain the query
func searchConversations(conversations []model.Conversation, query string) []conversationMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		matches := make([]conversationMatch, 0, len(conversations))
		for _, conv := range conversations {
			matches = append(matches, conversationMatch{ConversationID: conv.ID, Title: conv.Title})
		}
		return matches
	}

	var matches []conversationMatch
	seen := make(map[string]bool)
	for _, m := range fuzzy.FindFrom(query, titleSource(conversations)) {
		conv := conversations[m.Index]
		seen[conv.ID] = true
		matches = append(matches, conversationMatch{
			ConversationID: conv.ID,
			Title:          conv.Title,
			TitleIndexes:   m.MatchedIndexes,
		})
	}

	queryLower := strings.ToLower(query)
	for _, conv := range conversations {
		if seen[conv.ID] {
			continue
		}
		for _, msg := range conv.Messages {
			if msg.IsError {
				continue
			}
			if idx := strings.Index(strings.ToLower(msg.Text), queryLower); idx >= 0 {
				matches = append(matches, conversationMatch{
					ConversationID: conv.ID,
					Title:          conv.Title,
					Preview:        excerpt(msg.Text, idx),
				})
				break
			}
		}
	}
	return matches
}

// excerpt returns a single-line preview of text starting a little before
// byte offset idx
func excerpt(text string, idx int) string {
	// Lowercasing can change byte lengths
	if idx > len(text) {
		idx = len(text)
	}
	for idx > 0 && idx < len(text) && !utf8.RuneStart(text[idx]) {
		idx--
	}
	start := strings.LastIndexAny(text[:idx], ".!?\n")
	if start < 0 || idx-start > previewWidth/2 {
		start = 0
		if lead := []rune(text[:idx]); len(lead) > previewWidth/3 {
			start = len(string(lead[:len(lead)-previewWidth/3]))
		}
	} else {
		start++
	}

	preview := strings.Join(strings.Fields(text[start:]), " ")
	if start > 0 {
		preview = "…" + preview
	}
	return runewidth.Truncate(preview, previewWidth, "…")
}
