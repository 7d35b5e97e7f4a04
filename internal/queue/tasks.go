// Package queue provides the asynq-backed work queue that decouples webhook
// ingestion from engine processing.
package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskProcessMessage = "engine.process_message"

const TaskNurtureFollowUp = "engine.nurture_followup"

// ProcessMessagePayload is the job enqueued for every stored inbound message.
// StateAtEnqueue is informational only; the engine re-reads live state.
type ProcessMessagePayload struct {
	ConversationID    string `json:"conversationId" validate:"required,uuid"`
	ProviderMessageID string `json:"providerMessageId"`
	Sender            string `json:"sender" validate:"required"`
	ContactName       string `json:"contactName,omitempty"`
	MessageType       string `json:"messageType"`
	Text              string `json:"text,omitempty"`
	ReplyID           string `json:"replyId,omitempty"`
	ReplyTitle        string `json:"replyTitle,omitempty"`
	StateAtEnqueue    string `json:"stateAtEnqueue,omitempty"`
	CorrelationID     string `json:"correlationId,omitempty"`
}

// NurtureFollowUpPayload is the delayed check-in job scheduled when a
// conversation enters the nurture track.
type NurtureFollowUpPayload struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Touch          int    `json:"touch"`
}

func NewProcessMessageTask(payload ProcessMessagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessMessage, data), nil
}

func ParseProcessMessagePayload(task *asynq.Task) (ProcessMessagePayload, error) {
	var payload ProcessMessagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessMessagePayload{}, err
	}
	return payload, nil
}

func NewNurtureFollowUpTask(payload NurtureFollowUpPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNurtureFollowUp, data), nil
}

func ParseNurtureFollowUpPayload(task *asynq.Task) (NurtureFollowUpPayload, error) {
	var payload NurtureFollowUpPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NurtureFollowUpPayload{}, err
	}
	return payload, nil
}
