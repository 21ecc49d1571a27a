package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"dataset-service/internal/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatExample struct {
	Messages []chatMessage `json:"messages"`
}

// BuildTrainingJSONL renders pairs as chat-format JSONL, one example per line,
// with the training goal as the system message.
func BuildTrainingJSONL(trainingGoal string, pairs []models.DatasetPair) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, p := range pairs {
		ex := chatExample{Messages: make([]chatMessage, 0, 3)}
		if trainingGoal != "" {
			ex.Messages = append(ex.Messages, chatMessage{Role: "system", Content: trainingGoal})
		}
		ex.Messages = append(ex.Messages,
			chatMessage{Role: "user", Content: p.Question},
			chatMessage{Role: "assistant", Content: p.Answer},
		)
		if err := enc.Encode(ex); err != nil {
			return nil, fmt.Errorf("encode pair %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
