package runtime

import (
	"strings"

	"github.com/aretw0/convoflow/pkg/domain"
)

// option is a selectable answer of a BUTTON or LIST node.
type option struct {
	id      string
	label   string
	storeIn string
}

// match finds the option chosen by input: the interactive reply id first,
// then the typed text against ids and labels, ignoring case.
func match(options []option, input *domain.Input) (option, bool) {
	if input == nil {
		return option{}, false
	}
	if input.ChoiceID != "" {
		for _, o := range options {
			if o.id == input.ChoiceID {
				return o, true
			}
		}
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return option{}, false
	}
	for _, o := range options {
		if o.id == text || strings.EqualFold(o.label, text) {
			return o, true
		}
	}
	return option{}, false
}

// choose advances through the chosen option, or applies the fallback.
// prompt re-sends the question when there is nowhere to fall back to.
func choose(rc *runContext, options []option, storeIn string, fallback *domain.Fallback, prompt func()) (outcome, error) {
	if o, ok := match(options, rc.input); ok {
		if o.storeIn != "" {
			storeIn = o.storeIn
		}
		rc.scope.Set(storeIn, o.label)
		return advance(o.id), nil
	}

	if fallback != nil {
		rc.sendText(rc.resolve(fallback.Message))
	}
	if target := rc.flow.Resolve(rc.node, domain.HandleFallback); target != "" {
		return jump(target), nil
	}
	prompt()
	return waitInput(), nil
}

type buttonExecutor struct {
	cfg *domain.ButtonConfig
}

func (x buttonExecutor) execute(rc *runContext) (outcome, error) {
	x.prompt(rc)
	return waitInput(), nil
}

func (x buttonExecutor) resume(rc *runContext) (outcome, error) {
	options := make([]option, 0, len(x.cfg.Buttons))
	for _, b := range x.cfg.Buttons {
		options = append(options, option{id: b.ID, label: rc.resolve(b.Label), storeIn: b.StoreIn})
	}
	return choose(rc, options, x.cfg.StoreIn, x.cfg.Fallback, func() { x.prompt(rc) })
}

func (x buttonExecutor) prompt(rc *runContext) {
	msg := domain.ChoiceMessage{Kind: domain.KindButton, Body: rc.resolve(x.cfg.MessageText)}
	for _, b := range x.cfg.Buttons {
		msg.Choices = append(msg.Choices, domain.Choice{ID: b.ID, Title: rc.resolve(b.Label)})
	}
	rc.sendChoice(msg)
}

type listExecutor struct {
	cfg *domain.ListConfig
}

func (x listExecutor) execute(rc *runContext) (outcome, error) {
	x.prompt(rc)
	return waitInput(), nil
}

func (x listExecutor) resume(rc *runContext) (outcome, error) {
	var options []option
	for _, item := range x.cfg.Items() {
		options = append(options, option{id: item.ID, label: rc.resolve(item.Title)})
	}
	return choose(rc, options, x.cfg.StoreIn, x.cfg.Fallback, func() { x.prompt(rc) })
}

func (x listExecutor) prompt(rc *runContext) {
	msg := domain.ChoiceMessage{
		Kind:       domain.KindList,
		Body:       rc.resolve(x.cfg.MessageText),
		ButtonText: rc.resolve(x.cfg.ButtonText),
	}
	for _, sec := range x.cfg.Sections {
		cs := domain.ChoiceSection{Title: rc.resolve(sec.Title)}
		for _, item := range sec.Items {
			cs.Choices = append(cs.Choices, domain.Choice{
				ID:          item.ID,
				Title:       rc.resolve(item.Title),
				Description: rc.resolve(item.Description),
			})
		}
		msg.Sections = append(msg.Sections, cs)
	}
	rc.sendChoice(msg)
}
