package domain

import "fmt"

// NodeConfig is the typed configuration of a node. The set of
// implementations is closed: one per NodeType.
type NodeConfig interface {
	// NodeType reports which node type this configuration belongs to.
	NodeType() NodeType
	// Successors lists the next-node references embedded in the configuration.
	Successors() []Successor
	nodeConfig()
}

// Edge handles understood by the engine.
const (
	HandleDefault  = ""
	HandleSuccess  = "success"
	HandleFailure  = "failure"
	HandleError    = "error"
	HandleTrue     = "true"
	HandleFalse    = "false"
	HandleFallback = "fallback"
	HandleLoopBody = "loop-body"
	HandleDone     = "done"
)

// BranchHandle names the handle of the i-th condition branch.
func BranchHandle(i int) string {
	return fmt.Sprintf("branch-%d", i)
}

// FieldMapping copies the value at a JSON path into a variable.
type FieldMapping struct {
	JSONPath     string `json:"jsonPath" yaml:"jsonPath"`
	VariableName string `json:"variableName" yaml:"variableName"`
}

// KeyValue is an ordered header or query parameter.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Fallback is what a choice node does with an answer that matches no option.
type Fallback struct {
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

// Retry bounds the attempts of an external call. Delay is in milliseconds.
type Retry struct {
	Max   int `json:"max" yaml:"max"`
	Delay int `json:"delay" yaml:"delay"`
}

type StartConfig struct {
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

type MessageConfig struct {
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
	// MessageContent is the legacy name of Text.
	MessageContent string `json:"messageContent,omitempty" yaml:"messageContent,omitempty"`
	NextNodeID     string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

// Body returns the message text, honouring the legacy field.
func (c *MessageConfig) Body() string {
	if c.Text != "" {
		return c.Text
	}
	return c.MessageContent
}

type Button struct {
	ID         string `json:"buttonId" yaml:"buttonId"`
	Label      string `json:"label" yaml:"label"`
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
	StoreIn    string `json:"storeIn,omitempty" yaml:"storeIn,omitempty"`
}

type ButtonConfig struct {
	MessageText string    `json:"messageText" yaml:"messageText"`
	Buttons     []Button  `json:"buttons" yaml:"buttons"`
	StoreIn     string    `json:"storeIn,omitempty" yaml:"storeIn,omitempty"`
	Fallback    *Fallback `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

type ListItem struct {
	ID          string `json:"itemId" yaml:"itemId"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	NextNodeID  string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

type ListSection struct {
	Title string     `json:"title,omitempty" yaml:"title,omitempty"`
	Items []ListItem `json:"items" yaml:"items"`
}

type ListConfig struct {
	MessageText string        `json:"messageText" yaml:"messageText"`
	ButtonText  string        `json:"buttonText" yaml:"buttonText"`
	Sections    []ListSection `json:"sections" yaml:"sections"`
	StoreIn     string        `json:"storeIn,omitempty" yaml:"storeIn,omitempty"`
	Fallback    *Fallback     `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Items returns all items across sections, in order.
func (c *ListConfig) Items() []ListItem {
	var out []ListItem
	for _, s := range c.Sections {
		out = append(out, s.Items...)
	}
	return out
}

// InputType selects the validation applied to free-text answers.
type InputType string

const (
	InputText        InputType = "TEXT"
	InputNumber      InputType = "NUMBER"
	InputEmail       InputType = "EMAIL"
	InputPhone       InputType = "PHONE"
	InputCustomRegex InputType = "CUSTOM_REGEX"
)

type InputValidation struct {
	MinLength    int    `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	RegexPattern string `json:"regexPattern,omitempty" yaml:"regexPattern,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

type InputRetry struct {
	MaxRetries        int    `json:"maxRetries" yaml:"maxRetries"`
	RetryMessage      string `json:"retryMessage,omitempty" yaml:"retryMessage,omitempty"`
	FailureNextNodeID string `json:"failureNextNodeId,omitempty" yaml:"failureNextNodeId,omitempty"`
}

type InputConfig struct {
	PromptText string `json:"promptText,omitempty" yaml:"promptText,omitempty"`
	// PromptMessage is the legacy name of PromptText.
	PromptMessage     string           `json:"promptMessage,omitempty" yaml:"promptMessage,omitempty"`
	InputType         InputType        `json:"inputType,omitempty" yaml:"inputType,omitempty"`
	Validation        *InputValidation `json:"validation,omitempty" yaml:"validation,omitempty"`
	VariableName      string           `json:"variableName" yaml:"variableName"`
	RetryConfig       *InputRetry      `json:"retryConfig,omitempty" yaml:"retryConfig,omitempty"`
	SuccessNextNodeID string           `json:"successNextNodeId,omitempty" yaml:"successNextNodeId,omitempty"`
}

// Prompt returns the prompt text, honouring the legacy field.
func (c *InputConfig) Prompt() string {
	if c.PromptText != "" {
		return c.PromptText
	}
	return c.PromptMessage
}

// Operator of a CONDITION comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpRegexMatch  Operator = "regex_match"
)

type ConditionBranch struct {
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	Expression string `json:"expression" yaml:"expression"`
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

type BranchTarget struct {
	NextNodeID string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

type ConditionConfig struct {
	ConditionType string            `json:"conditionType,omitempty" yaml:"conditionType,omitempty"`
	LeftOperand   string            `json:"leftOperand" yaml:"leftOperand"`
	Operator      Operator          `json:"operator" yaml:"operator"`
	RightOperand  string            `json:"rightOperand,omitempty" yaml:"rightOperand,omitempty"`
	Branches      []ConditionBranch `json:"branches,omitempty" yaml:"branches,omitempty"`
	DefaultBranch *BranchTarget     `json:"defaultBranch,omitempty" yaml:"defaultBranch,omitempty"`
}

// DelayUnit scales DelayConfig.DelaySeconds.
type DelayUnit string

const (
	DelaySeconds DelayUnit = "SECONDS"
	DelayMinutes DelayUnit = "MINUTES"
	DelayHours   DelayUnit = "HOURS"
)

type DelayConfig struct {
	DelaySeconds int `json:"delaySeconds,omitempty" yaml:"delaySeconds,omitempty"`
	// DelayDuration is the legacy name of DelaySeconds.
	DelayDuration int       `json:"delayDuration,omitempty" yaml:"delayDuration,omitempty"`
	DelayUnit     DelayUnit `json:"delayUnit,omitempty" yaml:"delayUnit,omitempty"`
	NextNodeID    string    `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

// Amount returns the configured delay amount before unit scaling.
func (c *DelayConfig) Amount() int {
	if c.DelaySeconds != 0 {
		return c.DelaySeconds
	}
	return c.DelayDuration
}

type AuthType string

const (
	AuthNone         AuthType = "NONE"
	AuthBearer       AuthType = "BEARER"
	AuthAPIKey       AuthType = "API_KEY"
	AuthBasic        AuthType = "BASIC_AUTH"
	AuthCustomHeader AuthType = "CUSTOM_HEADER"
)

type AuthConfig struct {
	BearerToken      string `json:"bearerToken,omitempty" yaml:"bearerToken,omitempty"`
	APIKeyName       string `json:"apiKeyName,omitempty" yaml:"apiKeyName,omitempty"`
	APIKeyValue      string `json:"apiKeyValue,omitempty" yaml:"apiKeyValue,omitempty"`
	APIKeyLocation   string `json:"apiKeyLocation,omitempty" yaml:"apiKeyLocation,omitempty"`
	BasicUsername    string `json:"basicUsername,omitempty" yaml:"basicUsername,omitempty"`
	BasicPassword    string `json:"basicPassword,omitempty" yaml:"basicPassword,omitempty"`
	CustomAuthHeader string `json:"customAuthHeader,omitempty" yaml:"customAuthHeader,omitempty"`
	CustomAuthValue  string `json:"customAuthValue,omitempty" yaml:"customAuthValue,omitempty"`
}

type ContentType string

const (
	ContentJSON ContentType = "JSON"
	ContentForm ContentType = "FORM_URLENCODED"
	ContentRaw  ContentType = "RAW"
)

type APIConfig struct {
	Method      string      `json:"method,omitempty" yaml:"method,omitempty"`
	URL         string      `json:"url" yaml:"url"`
	AuthType    AuthType    `json:"authType,omitempty" yaml:"authType,omitempty"`
	AuthConfig  *AuthConfig `json:"authConfig,omitempty" yaml:"authConfig,omitempty"`
	Headers     []KeyValue  `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams []KeyValue  `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	ContentType ContentType `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Body        string      `json:"body,omitempty" yaml:"body,omitempty"`
	// Timeout is in seconds.
	Timeout      int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryEnabled bool   `json:"retryEnabled,omitempty" yaml:"retryEnabled,omitempty"`
	Retry        *Retry `json:"retry,omitempty" yaml:"retry,omitempty"`

	StatusCodeVariable  string         `json:"statusCodeVariable,omitempty" yaml:"statusCodeVariable,omitempty"`
	StoreEntireResponse bool           `json:"storeEntireResponse,omitempty" yaml:"storeEntireResponse,omitempty"`
	StoreResponseIn     string         `json:"storeResponseIn,omitempty" yaml:"storeResponseIn,omitempty"`
	ResponseVariable    string         `json:"responseVariable,omitempty" yaml:"responseVariable,omitempty"`
	ResponseMapping     []FieldMapping `json:"responseMapping,omitempty" yaml:"responseMapping,omitempty"`
	ErrorVariable       string         `json:"errorVariable,omitempty" yaml:"errorVariable,omitempty"`

	SuccessNextNodeID string `json:"successNextNodeId,omitempty" yaml:"successNextNodeId,omitempty"`
	FailureNextNodeID string `json:"failureNextNodeId,omitempty" yaml:"failureNextNodeId,omitempty"`
}

// ResponseTarget is the variable receiving the whole response body.
func (c *APIConfig) ResponseTarget() string {
	if c.StoreResponseIn != "" {
		return c.StoreResponseIn
	}
	return c.ResponseVariable
}

type AIConfig struct {
	AIProviderID  string `json:"aiProviderId,omitempty" yaml:"aiProviderId,omitempty"`
	CustomBaseURL string `json:"customBaseUrl,omitempty" yaml:"customBaseUrl,omitempty"`
	CustomAPIKey  string `json:"customApiKey,omitempty" yaml:"customApiKey,omitempty"`
	Model         string `json:"model,omitempty" yaml:"model,omitempty"`

	SystemPrompt   string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	UserMessage    string `json:"userMessage" yaml:"userMessage"`
	IncludeHistory bool   `json:"includeHistory,omitempty" yaml:"includeHistory,omitempty"`
	HistoryLength  int    `json:"historyLength,omitempty" yaml:"historyLength,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty" yaml:"topP,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty" yaml:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty" yaml:"presencePenalty,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty" yaml:"stopSequences,omitempty"`
	Seed             *int     `json:"seed,omitempty" yaml:"seed,omitempty"`
	// ResponseFormat is "text" or "json_object".
	ResponseFormat string `json:"responseFormat,omitempty" yaml:"responseFormat,omitempty"`

	SendToUser          bool           `json:"sendToUser,omitempty" yaml:"sendToUser,omitempty"`
	ResponseVariable    string         `json:"responseVariable" yaml:"responseVariable"`
	StoreEntireResponse bool           `json:"storeEntireResponse,omitempty" yaml:"storeEntireResponse,omitempty"`
	StoreResponseIn     string         `json:"storeResponseIn,omitempty" yaml:"storeResponseIn,omitempty"`
	ResponseMapping     []FieldMapping `json:"responseMapping,omitempty" yaml:"responseMapping,omitempty"`
	StoreTokenUsage     bool           `json:"storeTokenUsage,omitempty" yaml:"storeTokenUsage,omitempty"`
	TokenUsageVariable  string         `json:"tokenUsageVariable,omitempty" yaml:"tokenUsageVariable,omitempty"`
	ErrorVariable       string         `json:"errorVariable,omitempty" yaml:"errorVariable,omitempty"`
	FallbackMessage     string         `json:"fallbackMessage,omitempty" yaml:"fallbackMessage,omitempty"`

	// Timeout is in seconds.
	Timeout      int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryEnabled bool   `json:"retryEnabled,omitempty" yaml:"retryEnabled,omitempty"`
	Retry        *Retry `json:"retry,omitempty" yaml:"retry,omitempty"`

	SuccessNextNodeID string `json:"successNextNodeId,omitempty" yaml:"successNextNodeId,omitempty"`
	FailureNextNodeID string `json:"failureNextNodeId,omitempty" yaml:"failureNextNodeId,omitempty"`
}

type LoopType string

const (
	LoopForEach        LoopType = "FOR_EACH"
	LoopCountBased     LoopType = "COUNT_BASED"
	LoopConditionBased LoopType = "CONDITION_BASED"
)

type LoopConfig struct {
	LoopType LoopType `json:"loopType,omitempty" yaml:"loopType,omitempty"`

	ArrayVariable string         `json:"arrayVariable,omitempty" yaml:"arrayVariable,omitempty"`
	ItemVariable  string         `json:"itemVariable,omitempty" yaml:"itemVariable,omitempty"`
	IndexVariable string         `json:"indexVariable,omitempty" yaml:"indexVariable,omitempty"`
	ItemMapping   []FieldMapping `json:"itemMapping,omitempty" yaml:"itemMapping,omitempty"`

	IterationCount int `json:"iterationCount,omitempty" yaml:"iterationCount,omitempty"`
	// CountFrom is a template evaluated once when the loop starts; it
	// overrides IterationCount when it resolves to a number.
	CountFrom       string `json:"countFrom,omitempty" yaml:"countFrom,omitempty"`
	StartValue      int    `json:"startValue,omitempty" yaml:"startValue,omitempty"`
	Step            int    `json:"step,omitempty" yaml:"step,omitempty"`
	CounterVariable string `json:"counterVariable,omitempty" yaml:"counterVariable,omitempty"`

	ContinueCondition string `json:"continueCondition,omitempty" yaml:"continueCondition,omitempty"`

	MaxIterations            int    `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	CurrentIterationVariable string `json:"currentIterationVariable,omitempty" yaml:"currentIterationVariable,omitempty"`
	CountVariable            string `json:"countVariable,omitempty" yaml:"countVariable,omitempty"`
	CollectResults           bool   `json:"collectResults,omitempty" yaml:"collectResults,omitempty"`
	ResultVariable           string `json:"resultVariable,omitempty" yaml:"resultVariable,omitempty"`
	ResultJSONPath           string `json:"resultJsonPath,omitempty" yaml:"resultJsonPath,omitempty"`
	// OnEmptyArray is SKIP (default) or ERROR.
	OnEmptyArray  string `json:"onEmptyArray,omitempty" yaml:"onEmptyArray,omitempty"`
	ErrorVariable string `json:"errorVariable,omitempty" yaml:"errorVariable,omitempty"`

	LoopBodyNextNodeID string `json:"loopBodyNextNodeId,omitempty" yaml:"loopBodyNextNodeId,omitempty"`
	ExitNextNodeID     string `json:"exitNextNodeId,omitempty" yaml:"exitNextNodeId,omitempty"`
	ErrorNextNodeID    string `json:"errorNextNodeId,omitempty" yaml:"errorNextNodeId,omitempty"`
}

// Mode returns the loop type, defaulting to FOR_EACH.
func (c *LoopConfig) Mode() LoopType {
	if c.LoopType == "" {
		return LoopForEach
	}
	return c.LoopType
}

type SessionAction string

const (
	SessionKeepActive SessionAction = "KEEP_ACTIVE"
	SessionClose      SessionAction = "CLOSE_SESSION"
)

type EndConfig struct {
	// EndType is NORMAL or ERROR; it is recorded but does not change the outcome.
	EndType       string        `json:"endType,omitempty" yaml:"endType,omitempty"`
	FinalMessage  string        `json:"finalMessage,omitempty" yaml:"finalMessage,omitempty"`
	SessionAction SessionAction `json:"sessionAction,omitempty" yaml:"sessionAction,omitempty"`
}

type SubflowConfig struct {
	TargetFlowID string `json:"targetFlowId" yaml:"targetFlowId"`
	NextNodeID   string `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
}

func (*StartConfig) NodeType() NodeType     { return NodeStart }
func (*MessageConfig) NodeType() NodeType   { return NodeMessage }
func (*ButtonConfig) NodeType() NodeType    { return NodeButton }
func (*ListConfig) NodeType() NodeType      { return NodeList }
func (*InputConfig) NodeType() NodeType     { return NodeInput }
func (*ConditionConfig) NodeType() NodeType { return NodeCondition }
func (*DelayConfig) NodeType() NodeType     { return NodeDelay }
func (*APIConfig) NodeType() NodeType       { return NodeAPI }
func (*AIConfig) NodeType() NodeType        { return NodeAI }
func (*LoopConfig) NodeType() NodeType      { return NodeLoop }
func (*EndConfig) NodeType() NodeType       { return NodeEnd }
func (*SubflowConfig) NodeType() NodeType   { return NodeSubflow }

func (*StartConfig) nodeConfig()     {}
func (*MessageConfig) nodeConfig()   {}
func (*ButtonConfig) nodeConfig()    {}
func (*ListConfig) nodeConfig()      {}
func (*InputConfig) nodeConfig()     {}
func (*ConditionConfig) nodeConfig() {}
func (*DelayConfig) nodeConfig()     {}
func (*APIConfig) nodeConfig()       {}
func (*AIConfig) nodeConfig()        {}
func (*LoopConfig) nodeConfig()      {}
func (*EndConfig) nodeConfig()       {}
func (*SubflowConfig) nodeConfig()   {}

func (c *StartConfig) Successors() []Successor {
	return []Successor{{Handle: HandleDefault, Target: c.NextNodeID}}
}

func (c *MessageConfig) Successors() []Successor {
	return []Successor{{Handle: HandleDefault, Target: c.NextNodeID}}
}

func (c *ButtonConfig) Successors() []Successor {
	out := make([]Successor, 0, len(c.Buttons)+1)
	for _, b := range c.Buttons {
		out = append(out, Successor{Handle: b.ID, Target: b.NextNodeID})
	}
	if c.Fallback != nil {
		out = append(out, Successor{Handle: HandleFallback, Target: c.Fallback.NextNodeID})
	}
	return out
}

func (c *ListConfig) Successors() []Successor {
	var out []Successor
	for _, item := range c.Items() {
		out = append(out, Successor{Handle: item.ID, Target: item.NextNodeID})
	}
	if c.Fallback != nil {
		out = append(out, Successor{Handle: HandleFallback, Target: c.Fallback.NextNodeID})
	}
	return out
}

func (c *InputConfig) Successors() []Successor {
	out := []Successor{{Handle: HandleSuccess, Target: c.SuccessNextNodeID}}
	if c.RetryConfig != nil {
		out = append(out, Successor{Handle: HandleFailure, Target: c.RetryConfig.FailureNextNodeID})
	}
	return out
}

func (c *ConditionConfig) Successors() []Successor {
	var out []Successor
	for i, b := range c.Branches {
		out = append(out, Successor{Handle: BranchHandle(i), Target: b.NextNodeID})
	}
	if c.DefaultBranch != nil {
		out = append(out, Successor{Handle: HandleFalse, Target: c.DefaultBranch.NextNodeID})
	}
	return out
}

func (c *DelayConfig) Successors() []Successor {
	return []Successor{{Handle: HandleDefault, Target: c.NextNodeID}}
}

func (c *APIConfig) Successors() []Successor {
	return []Successor{
		{Handle: HandleSuccess, Target: c.SuccessNextNodeID},
		{Handle: HandleError, Target: c.FailureNextNodeID},
	}
}

func (c *AIConfig) Successors() []Successor {
	return []Successor{
		{Handle: HandleSuccess, Target: c.SuccessNextNodeID},
		{Handle: HandleError, Target: c.FailureNextNodeID},
	}
}

func (c *LoopConfig) Successors() []Successor {
	return []Successor{
		{Handle: HandleLoopBody, Target: c.LoopBodyNextNodeID},
		{Handle: HandleDone, Target: c.ExitNextNodeID},
		{Handle: HandleError, Target: c.ErrorNextNodeID},
	}
}

func (*EndConfig) Successors() []Successor { return nil }

func (c *SubflowConfig) Successors() []Successor {
	return []Successor{{Handle: HandleDefault, Target: c.NextNodeID}}
}

// NewConfig returns an empty configuration for t, or nil for unknown types.
func NewConfig(t NodeType) NodeConfig {
	switch t {
	case NodeStart:
		return &StartConfig{}
	case NodeMessage:
		return &MessageConfig{}
	case NodeButton:
		return &ButtonConfig{}
	case NodeList:
		return &ListConfig{}
	case NodeInput:
		return &InputConfig{}
	case NodeCondition:
		return &ConditionConfig{}
	case NodeDelay:
		return &DelayConfig{}
	case NodeAPI:
		return &APIConfig{}
	case NodeAI:
		return &AIConfig{}
	case NodeLoop:
		return &LoopConfig{}
	case NodeEnd:
		return &EndConfig{}
	case NodeSubflow:
		return &SubflowConfig{}
	}
	return nil
}
