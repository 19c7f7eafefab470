package filter

import "fmt"

// ReferenceKind says what an unknown reference was expected to be.
type ReferenceKind string

const (
	RefField    ReferenceKind = "field"
	RefOperator ReferenceKind = "operator"
)

// SchemaError reports a token that does not name a filterable field or an
// operator of the bound field. The parser stays incomplete.
type SchemaError struct {
	Kind       ReferenceKind `json:"kind"`
	Token      string        `json:"token"`
	Pos        int           `json:"pos"`
	Suggestion string        `json:"suggestion,omitempty"` // "did you mean 'amount'?" or ""
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("unknown reference: %q is not a known %s", e.Token, e.Kind)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// ApplyError is returned when a condition that is not complete is applied.
type ApplyError struct {
	Reason string
}

func (e *ApplyError) Error() string {
	return "cannot apply filter: " + e.Reason
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom finds the closest candidate within maxDist edits. Returns ""
// if nothing is close enough.
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		if d := Levenshtein(input, c); d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return ""
}
