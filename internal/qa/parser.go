package qa

import (
	"encoding/json"
	"regexp"
	"strings"

	"dataset-service/internal/models"
)

var (
	fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\\r?\\n?(.*?)```")

	rolePairPattern = regexp.MustCompile(`(?s)"role"\s*:\s*"user"\s*,\s*"content"\s*:\s*"((?:[^"\\]|\\.)*)".*?"role"\s*:\s*"assistant"\s*,\s*"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	labelPairPattern = regexp.MustCompile(`(?im)^\s*(?:user|question|q)\s*:\s*(.+?)\s*\n\s*(?:assistant|answer|a)\s*:\s*(.+?)\s*$`)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rawItem struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Messages []chatMessage `json:"messages"`
}

// ParsePairs extracts QA pairs from a raw model response. It tries, in order,
// a JSON array, newline-delimited JSON objects and a permissive pattern match,
// and returns the first non-empty result. Unparsable input yields nil.
func ParsePairs(response string) []models.QAPair {
	text := stripFence(response)
	if text == "" {
		return nil
	}

	if pairs := parseArray(text); len(pairs) > 0 {
		return pairs
	}
	if pairs := parseLines(text); len(pairs) > 0 {
		return pairs
	}
	// Patterns run on the unstripped response so pairs outside a fence still count.
	return parsePatterns(response)
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unterminated fence.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		return strings.TrimSpace(s)
	}
	return s
}

func parseArray(text string) []models.QAPair {
	var items []rawItem
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil
	}
	var pairs []models.QAPair
	for _, item := range items {
		pairs = append(pairs, item.pairs()...)
	}
	return pairs
}

func parseLines(text string) []models.QAPair {
	var pairs []models.QAPair
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, ",")
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var item rawItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}
		pairs = append(pairs, item.pairs()...)
	}
	return pairs
}

func parsePatterns(text string) []models.QAPair {
	var pairs []models.QAPair
	for _, m := range rolePairPattern.FindAllStringSubmatch(text, -1) {
		pairs = appendPair(pairs, unescape(m[1]), unescape(m[2]))
	}
	if len(pairs) > 0 {
		return pairs
	}
	for _, m := range labelPairPattern.FindAllStringSubmatch(text, -1) {
		pairs = appendPair(pairs, m[1], m[2])
	}
	return pairs
}

// pairs turns one decoded object into zero or more pairs. Chat-style objects
// pair every user message with the assistant message that follows it.
func (item rawItem) pairs() []models.QAPair {
	if len(item.Messages) == 0 {
		return appendPair(nil, item.Question, item.Answer)
	}

	var out []models.QAPair
	question := ""
	for _, msg := range item.Messages {
		switch strings.ToLower(msg.Role) {
		case "user":
			question = msg.Content
		case "assistant":
			if question != "" {
				out = appendPair(out, question, msg.Content)
				question = ""
			}
		}
	}
	return out
}

func appendPair(pairs []models.QAPair, question, answer string) []models.QAPair {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return pairs
	}
	return append(pairs, models.QAPair{Question: question, Answer: answer})
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
