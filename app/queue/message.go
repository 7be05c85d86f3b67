package queue

import (
	"encoding/json"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

const StreamName = "campaigns:submissions"
const ConsumerGroup = "campaign-dispatchers"

// SubmissionMessage is one queued campaign run request. Tasks and options
// travel JSON-encoded in a single stream field since Redis stream values
// are flat strings.
type SubmissionMessage struct {
	CampaignID string            `json:"campaign_id"`
	Tasks      []entity.SendTask `json:"tasks"`
	Options    entity.RunOptions `json:"options"`
}

func (m *SubmissionMessage) encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSubmission(payload string) (*SubmissionMessage, error) {
	var m SubmissionMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
