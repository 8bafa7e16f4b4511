package whatsapp

import (
	"encoding/json"
	"fmt"
)

// Message is one inbound user message extracted from a notification.
type Message struct {
	// PhoneNumberID identifies the business number that received it.
	PhoneNumberID string
	From          string
	Text          string
	ChoiceID      string
	Timestamp     string
}

type notification struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []rawMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type rawMessage struct {
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply"`
		ListReply   *reply `json:"list_reply"`
	} `json:"interactive"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ParseNotification extracts the text and interactive replies of a webhook
// body. Statuses, other fields and unsupported message types are skipped.
func ParseNotification(body []byte) ([]Message, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.Object != "whatsapp_business_account" {
		return nil, nil
	}

	var out []Message
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			phoneID := change.Value.Metadata.PhoneNumberID
			if phoneID == "" {
				continue
			}
			for _, raw := range change.Value.Messages {
				msg, ok := raw.message()
				if !ok {
					continue
				}
				msg.PhoneNumberID = phoneID
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (r rawMessage) message() (Message, bool) {
	msg := Message{From: r.From, Timestamp: r.Timestamp}
	switch {
	case r.Type == "text" && r.Text != nil && r.Text.Body != "":
		msg.Text = r.Text.Body
	case r.Type == "interactive" && r.Interactive != nil && r.Interactive.ButtonReply != nil:
		msg.ChoiceID = r.Interactive.ButtonReply.ID
		msg.Text = r.Interactive.ButtonReply.Title
	case r.Type == "interactive" && r.Interactive != nil && r.Interactive.ListReply != nil:
		msg.ChoiceID = r.Interactive.ListReply.ID
		msg.Text = r.Interactive.ListReply.Title
	default:
		return Message{}, false
	}
	return msg, msg.From != ""
}
