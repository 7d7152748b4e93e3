package prompt

import (
	"github.com/manifoldco/promptui"
)

// TextWithDefault prefills the answer with defaultValue, which the user can
// edit or accept.
func TextWithDefault(label, defaultValue string, validators ...promptui.ValidateFunc) (string, error) {
	p := promptui.Prompt{
		Label:     label,
		Default:   defaultValue,
		AllowEdit: true,
		Validate:  Combine(validators...),
	}
	return p.Run()
}

// Combine runs validators in order and returns the first failure.
func Combine(validators ...promptui.ValidateFunc) promptui.ValidateFunc {
	return func(s string) error {
		for _, validator := range validators {
			if validator == nil {
				continue
			}
			if err := validator(s); err != nil {
				return err
			}
		}
		return nil
	}
}
