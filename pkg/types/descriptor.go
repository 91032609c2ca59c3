package types

import (
	"fmt"
	"strings"
)

// ArgumentDescriptors splits a method descriptor such as "(IJLjava/lang/String;[I)V"
// into its argument descriptors.
func ArgumentDescriptors(desc string) ([]string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, fmt.Errorf("malformed method descriptor %q", desc)
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 {
		return nil, fmt.Errorf("malformed method descriptor %q", desc)
	}

	var args []string
	params := desc[1:end]
	for i := 0; i < len(params); {
		start := i
		for i < len(params) && params[i] == '[' {
			i++
		}
		if i >= len(params) {
			return nil, fmt.Errorf("malformed method descriptor %q", desc)
		}
		switch params[i] {
		case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
			i++
		case 'L':
			semi := strings.IndexByte(params[i:], ';')
			if semi < 0 {
				return nil, fmt.Errorf("malformed method descriptor %q", desc)
			}
			i += semi + 1
		default:
			return nil, fmt.Errorf("malformed method descriptor %q: unexpected %q", desc, params[i])
		}
		args = append(args, params[start:i])
	}
	return args, nil
}

// SlotSize returns the number of local slots a value of the descriptor occupies.
func SlotSize(desc string) int {
	if desc == "J" || desc == "D" {
		return 2
	}
	return 1
}
