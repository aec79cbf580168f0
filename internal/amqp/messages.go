package amqp

import (
	"encoding/json"
	"time"
)

// ImportCompletedMessage announces a committed workbook import. Consumers
// fetch the rows themselves by batch id.
type ImportCompletedMessage struct {
	BatchID   string    `json:"batch_id"`
	Kind      string    `json:"kind"`
	Inserted  int       `json:"inserted"`
	Sheets    int       `json:"sheets"`
	Timestamp time.Time `json:"timestamp"`
}

func NewImportCompletedMessage(batchID, kind string, sheets, inserted int) *ImportCompletedMessage {
	return &ImportCompletedMessage{
		BatchID:   batchID,
		Kind:      kind,
		Inserted:  inserted,
		Sheets:    sheets,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ImportCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportCompletedMessageFromJSON(data []byte) (*ImportCompletedMessage, error) {
	var msg ImportCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
