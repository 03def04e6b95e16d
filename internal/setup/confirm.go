package setup

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

// Confirm asks the operator to approve the planned swaps.
func Confirm(swaps []domain.Swap) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Submit %d exchange transaction(s)?", len(swaps))).
				Affirmative("Yes, submit").
				Negative("No").
				Value(&ok),
		),
	).Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
