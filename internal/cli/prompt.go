package cli

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// Prompter asks the operator for a single value.
type Prompter interface {
	Input(title, description string, secret bool) (string, error)
}

// huhPrompter prompts on the terminal with a huh form.
type huhPrompter struct{}

func (huhPrompter) Input(title, description string, secret bool) (string, error) {
	var value string
	input := huh.NewInput().
		Title(title).
		Description(description).
		Value(&value).
		Validate(validateRequired(title))
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("aborted")
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}
