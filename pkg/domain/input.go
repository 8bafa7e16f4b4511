package domain

// Input is the end-user answer delivered to a waiting node.
// ChoiceID is set for interactive replies (button or list selections).
type Input struct {
	Text     string `json:"text,omitempty"`
	ChoiceID string `json:"choiceId,omitempty"`
}

// Empty reports whether the input carries nothing.
func (i *Input) Empty() bool {
	return i == nil || (i.Text == "" && i.ChoiceID == "")
}

// Inbound is a message arriving from a channel or from the simulator.
type Inbound struct {
	BotID string `json:"botId"`
	// FlowID pins the flow to run; empty means the bot's main flow.
	FlowID    string `json:"flowId,omitempty"`
	Address   string `json:"address"`
	Text      string `json:"text,omitempty"`
	ChoiceID  string `json:"choiceId,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Input returns the answer part of the inbound message.
func (in Inbound) Input() *Input {
	return &Input{Text: in.Text, ChoiceID: in.ChoiceID}
}

// RunResult is what a run hands back to the caller.
type RunResult struct {
	Session   *Session          `json:"session"`
	Responses []OutboundMessage `json:"responses"`
}
