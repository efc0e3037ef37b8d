package council

import "fmt"

const labelAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// labelFor returns the blind label for the participant at position i:
// A through Z, then Z1, Z2, and so on.
func labelFor(i int) string {
	if i < len(labelAlphabet) {
		return string(labelAlphabet[i])
	}
	return fmt.Sprintf("Z%d", i-25)
}
