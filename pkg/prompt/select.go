package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// SelectOption is a menu entry that runs Func when chosen.
type SelectOption struct {
	Label string
	Emoji string
	Func  func() error
}

func (o SelectOption) String() string {
	if o.Emoji == "" {
		return o.Label
	}
	return o.Emoji + " " + o.Label
}

func NewSelectOption(label, emoji string, f func() error) SelectOption {
	return SelectOption{Label: label, Emoji: emoji, Func: f}
}

func Select[T fmt.Stringer](label string, options ...T) (*T, error) {
	p := promptui.Select{
		Label:        label,
		Items:        options,
		Size:         len(options),
		HideSelected: true,
	}

	i, _, err := p.Run()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(options) {
		return nil, errors.New("selection out of range")
	}
	return &options[i], nil
}

func SelectAndExecute(label string, options ...SelectOption) error {
	option, err := Select(label, options...)
	if err != nil {
		return err
	}
	return option.Func()
}
