package domain

import "time"

// Sender of a logged message.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderBot  Sender = "BOT"
)

// MessageKind distinguishes plain text from interactive choice messages.
type MessageKind string

const (
	KindText   MessageKind = "TEXT"
	KindButton MessageKind = "BUTTON"
	KindList   MessageKind = "LIST"
)

// Choice is one selectable option of an interactive message.
type Choice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ChoiceSection groups list options under a heading.
type ChoiceSection struct {
	Title   string   `json:"title,omitempty"`
	Choices []Choice `json:"choices"`
}

// ChoiceMessage is the channel-neutral payload of a BUTTON or LIST prompt.
type ChoiceMessage struct {
	Kind MessageKind `json:"kind"`
	Body string      `json:"body"`
	// ButtonText labels the list opener; unused for buttons.
	ButtonText string          `json:"buttonText,omitempty"`
	Choices    []Choice        `json:"choices,omitempty"`
	Sections   []ChoiceSection `json:"sections,omitempty"`
}

// OutboundMessage is an effect produced by a node for the end user.
type OutboundMessage struct {
	NodeID string         `json:"nodeId"`
	Kind   MessageKind    `json:"kind"`
	Text   string         `json:"text"`
	Choice *ChoiceMessage `json:"choice,omitempty"`
}

// DeliveryStatus is the outcome of handing a message to the transport.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryFailed    DeliveryStatus = "FAILED"
	DeliverySimulated DeliveryStatus = "SIMULATED"
	DeliveryReceived  DeliveryStatus = "RECEIVED"
)

// MessageRecord is an entry of the message log.
type MessageRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	BotID     string         `json:"botId"`
	Sender    Sender         `json:"sender"`
	Kind      MessageKind    `json:"kind"`
	Content   string         `json:"content"`
	Choices   []Choice       `json:"choices,omitempty"`
	NodeID    string         `json:"nodeId,omitempty"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ExecutionRecord is an entry of the execution log, one per node run.
type ExecutionRecord struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"sessionId"`
	FlowVersionID   string         `json:"flowVersionId"`
	NodeID          string         `json:"nodeId"`
	NodeType        NodeType       `json:"nodeType"`
	NextNodeID      string         `json:"nextNodeId,omitempty"`
	Outcome         string         `json:"outcome"`
	Duration        time.Duration  `json:"duration"`
	InputVariables  map[string]any `json:"inputVariables,omitempty"`
	OutputVariables map[string]any `json:"outputVariables,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// AIStatus is the outcome of one completion attempt.
type AIStatus string

const (
	AISuccess AIStatus = "SUCCESS"
	AIError   AIStatus = "ERROR"
)

// AIUsageRecord is an entry of the AI usage log, one per attempt.
type AIUsageRecord struct {
	ID               string        `json:"id"`
	BotID            string        `json:"botId"`
	SessionID        string        `json:"sessionId"`
	NodeID           string        `json:"nodeId"`
	NodeLabel        string        `json:"nodeLabel,omitempty"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Attempt          int           `json:"attempt"`
	Status           AIStatus      `json:"status"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	TotalTokens      int           `json:"totalTokens"`
	Latency          time.Duration `json:"latency"`
	ErrorCode        string        `json:"errorCode,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// ProviderCredentials are the resolved connection details of an AI provider.
type ProviderCredentials struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"-"`
	Model   string `json:"model,omitempty"`
}
