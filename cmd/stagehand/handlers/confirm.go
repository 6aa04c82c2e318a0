package handlers

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// confirm asks the operator a yes/no question. It is replaced in tests.
var confirm = func(title, description string) (bool, error) {
	if !styled() {
		return false, errors.New("refusing to prompt without a terminal; pass --yes to confirm")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation aborted: %w", err)
	}
	return ok, nil
}

// errDeclined is returned when the operator answers no.
var errDeclined = errors.New("aborted: not confirmed")

func confirmed(yes bool, title, description string) error {
	if yes {
		return nil
	}
	ok, err := confirm(title, description)
	if err != nil {
		return err
	}
	if !ok {
		return errDeclined
	}
	return nil
}
