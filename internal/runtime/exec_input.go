package runtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/convoflow/pkg/domain"
)

const defaultInputError = "Invalid input, please try again."

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{6,19}$`)
)

type inputExecutor struct {
	cfg *domain.InputConfig
}

func (x inputExecutor) execute(rc *runContext) (outcome, error) {
	rc.session.InputRetries = 0
	rc.sendText(rc.resolve(x.cfg.Prompt()))
	return waitInput(), nil
}

func (x inputExecutor) resume(rc *runContext) (outcome, error) {
	var text string
	if rc.input != nil {
		text = strings.TrimSpace(rc.input.Text)
		if text == "" {
			text = rc.input.ChoiceID
		}
	}

	err := validateInput(text, x.cfg)
	if err == nil {
		rc.session.InputRetries = 0
		rc.scope.Set(x.cfg.VariableName, text)
		return advance(domain.HandleSuccess), nil
	}

	rc.session.InputRetries++
	retry := x.cfg.RetryConfig
	if retry != nil && rc.session.InputRetries > retry.MaxRetries {
		if target := rc.flow.Resolve(rc.node, domain.HandleFailure); target != "" {
			rc.session.InputRetries = 0
			return jump(target), nil
		}
	}

	rc.sendText(rc.resolve(x.retryMessage()))
	return waitInput(), nil
}

func (x inputExecutor) retryMessage() string {
	if x.cfg.RetryConfig != nil && x.cfg.RetryConfig.RetryMessage != "" {
		return x.cfg.RetryConfig.RetryMessage
	}
	if x.cfg.Validation != nil && x.cfg.Validation.ErrorMessage != "" {
		return x.cfg.Validation.ErrorMessage
	}
	return defaultInputError
}

// validateInput checks text against the input type and validation rules.
func validateInput(text string, cfg *domain.InputConfig) error {
	if text == "" {
		return fmt.Errorf("empty input")
	}

	switch cfg.InputType {
	case domain.InputNumber:
		if _, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64); err != nil {
			return fmt.Errorf("not a number: %q", text)
		}
	case domain.InputEmail:
		if !emailPattern.MatchString(text) {
			return fmt.Errorf("not an email address: %q", text)
		}
	case domain.InputPhone:
		if !phonePattern.MatchString(text) {
			return fmt.Errorf("not a phone number: %q", text)
		}
	case domain.InputCustomRegex:
		if cfg.Validation == nil || cfg.Validation.RegexPattern == "" {
			return fmt.Errorf("no pattern configured")
		}
	}

	v := cfg.Validation
	if v == nil {
		return nil
	}
	n := utf8.RuneCountInString(text)
	if v.MinLength > 0 && n < v.MinLength {
		return fmt.Errorf("shorter than %d characters", v.MinLength)
	}
	if v.MaxLength > 0 && n > v.MaxLength {
		return fmt.Errorf("longer than %d characters", v.MaxLength)
	}
	if v.RegexPattern != "" {
		re, err := regexp.Compile(v.RegexPattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", v.RegexPattern, err)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("does not match %q", v.RegexPattern)
		}
	}
	return nil
}
