package txn

import (
	"fmt"
	"strings"
)

// CommitOption is the policy applied to a cached instance on commit.
type CommitOption int

const (
	// OptionA keeps the instance cached and valid.
	OptionA CommitOption = iota
	// OptionB keeps the instance cached but invalidates its state.
	OptionB
	// OptionC evicts and passivates the instance.
	OptionC
	// OptionD keeps the instance cached and refreshes it periodically.
	OptionD
)

// String returns the single-letter name of the option.
func (o CommitOption) String() string {
	switch o {
	case OptionA:
		return "A"
	case OptionB:
		return "B"
	case OptionC:
		return "C"
	case OptionD:
		return "D"
	default:
		return "unknown"
	}
}

// ParseCommitOption parses "A" through "D", case-insensitively.
func ParseCommitOption(s string) (CommitOption, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "":
		return OptionA, nil
	case "B":
		return OptionB, nil
	case "C":
		return OptionC, nil
	case "D":
		return OptionD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOption, s)
	}
}
