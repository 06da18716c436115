package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const MovementsRecordedType = "movements.recorded"

// MovementsRecordedMessage announces movements committed to the ledger.
// It carries ids only; the consumer loads the rows from storage.
type MovementsRecordedMessage struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	UserID      int64     `json:"user_id"`
	MovementIDs []int64   `json:"movement_ids"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewMovementsRecordedMessage(userID int64, movementIDs []int64) *MovementsRecordedMessage {
	return &MovementsRecordedMessage{
		EventID:     uuid.NewString(),
		Type:        MovementsRecordedType,
		UserID:      userID,
		MovementIDs: movementIDs,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *MovementsRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MovementsRecordedMessageFromJSON(data []byte) (*MovementsRecordedMessage, error) {
	var msg MovementsRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
