// Package report renders assignments for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MikeSquared-Agency/Allot/internal/selector"
)

// Ranked is one reported permutation with its assignments spelled out.
type Ranked struct {
	Choice      selector.Choice       `json:"choice"`
	Assignments []selector.Assignment `json:"assignments"`
}

// WriteAssignments prints one line per agent.
func WriteAssignments(w io.Writer, as []selector.Assignment) error {
	for _, a := range as {
		if _, err := fmt.Fprintf(w, "%s is assigned %s, which they scored %s\n", a.AgentName, a.ItemName, a.Score); err != nil {
			return err
		}
	}
	return nil
}

// WriteSample prints a sampled assignment.
func WriteSample(w io.Writer, r Ranked) error {
	if _, err := fmt.Fprintf(w, "Sampled allocation (probability %.3f):\n", r.Choice.Coefficient); err != nil {
		return err
	}
	return WriteAssignments(w, r.Assignments)
}

// WriteTopK prints each permutation preceded by its probability and followed
// by a blank line.
func WriteTopK(w io.Writer, k int, ranked []Ranked) error {
	if _, err := fmt.Fprintf(w, "Top %d allocations\n", k); err != nil {
		return err
	}
	for _, r := range ranked {
		if _, err := fmt.Fprintf(w, "\nProbability: %.3f\n", r.Choice.Coefficient); err != nil {
			return err
		}
		if err := WriteAssignments(w, r.Assignments); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
