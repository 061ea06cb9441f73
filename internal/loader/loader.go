// Package loader reads the preferences and items files into an Input ready
// for ranking.
package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MikeSquared-Agency/Allot/internal/ranking"
)

var (
	ErrEmptyInput         = errors.New("loader: no records")
	ErrMissingName        = errors.New("loader: record has no agent name")
	ErrItemCountMismatch  = errors.New("loader: item count does not match score columns")
	ErrAgentCountMismatch = errors.New("loader: agent count does not match item count")
)

// InputFormatError points at the offending line of an input file. Line is
// 1-based; 0 means the problem is not tied to one line.
type InputFormatError struct {
	Path string
	Line int
	Err  error
}

func (e *InputFormatError) Error() string {
	where := e.Path
	if where == "" {
		where = "input"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", where, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *InputFormatError) Unwrap() error { return e.Err }

// Input is one complete problem: N agents, N items and the score table.
type Input struct {
	Source    string              `json:"source,omitempty"`
	Agents    []string            `json:"agents"`
	Items     []string            `json:"items"`
	ScoreText [][]string          `json:"scores"`
	Scores    ranking.ScoreMatrix `json:"-"`
}

// Preferences is the parsed preferences file before it is paired with items.
type Preferences struct {
	Names []string
	Cells [][]string
	Lines []int
}

// ReadPreferences parses "name,score_1,...,score_N" records. All records must
// carry the same number of scores.
func ReadPreferences(r io.Reader, path string) (*Preferences, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	p := &Preferences{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &InputFormatError{Path: path, Line: pe.Line, Err: pe.Err}
			}
			return nil, &InputFormatError{Path: path, Err: err}
		}
		line, _ := cr.FieldPos(0)

		name := strings.TrimSpace(rec[0])
		if name == "" {
			return nil, &InputFormatError{Path: path, Line: line, Err: ErrMissingName}
		}
		cells := rec[1:]
		if len(p.Cells) > 0 && len(cells) != len(p.Cells[0]) {
			return nil, &InputFormatError{Path: path, Line: line,
				Err: fmt.Errorf("%w: got %d scores, want %d", ranking.ErrMalformedScoreRow, len(cells), len(p.Cells[0]))}
		}
		p.Names = append(p.Names, name)
		p.Cells = append(p.Cells, cells)
		p.Lines = append(p.Lines, line)
	}
	if len(p.Names) == 0 {
		return nil, &InputFormatError{Path: path, Err: ErrEmptyInput}
	}
	return p, nil
}

// ReadItems reads one item name per line. Blank lines are ignored.
func ReadItems(r io.Reader, path string) ([]string, error) {
	var items []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		items = append(items, name)
	}
	if err := sc.Err(); err != nil {
		return nil, &InputFormatError{Path: path, Err: err}
	}
	if len(items) == 0 {
		return nil, &InputFormatError{Path: path, Err: ErrEmptyInput}
	}
	return items, nil
}

// Combine pairs preferences with items and parses every score.
func Combine(p *Preferences, items []string, path string) (*Input, error) {
	line := func(i int) int {
		if i < len(p.Lines) {
			return p.Lines[i]
		}
		return i + 1
	}

	if len(p.Cells) > 0 && len(p.Cells[0]) != len(items) {
		return nil, &InputFormatError{Path: path, Line: line(0),
			Err: fmt.Errorf("%w: %d items, %d scores per agent", ErrItemCountMismatch, len(items), len(p.Cells[0]))}
	}
	if len(p.Names) != len(items) {
		return nil, &InputFormatError{Path: path,
			Err: fmt.Errorf("%w: %d agents, %d items", ErrAgentCountMismatch, len(p.Names), len(items))}
	}

	scores, err := ranking.ParseScores(p.Cells, len(items))
	if err != nil {
		var ce *ranking.CellError
		if errors.As(err, &ce) {
			return nil, &InputFormatError{Path: path, Line: line(ce.Row), Err: err}
		}
		return nil, &InputFormatError{Path: path, Err: err}
	}

	return &Input{
		Source:    path,
		Agents:    p.Names,
		Items:     items,
		ScoreText: p.Cells,
		Scores:    scores,
	}, nil
}

// NewInput validates an in-memory problem, e.g. one posted to the API.
func NewInput(agents, items []string, scores [][]string) (*Input, error) {
	if len(agents) == 0 {
		return nil, &InputFormatError{Err: ErrEmptyInput}
	}
	if len(scores) != len(agents) {
		return nil, &InputFormatError{Err: fmt.Errorf("%w: %d agents, %d score rows", ranking.ErrMalformedScoreRow, len(agents), len(scores))}
	}
	for i, name := range agents {
		if strings.TrimSpace(name) == "" {
			return nil, &InputFormatError{Line: i + 1, Err: ErrMissingName}
		}
	}
	for i, row := range scores {
		if len(row) != len(items) {
			return nil, &InputFormatError{Line: i + 1,
				Err: fmt.Errorf("%w: got %d scores, want %d", ranking.ErrMalformedScoreRow, len(row), len(items))}
		}
	}
	p := &Preferences{Names: agents, Cells: scores}
	return Combine(p, items, "")
}

// LoadFiles reads both input files from disk.
func LoadFiles(prefsPath, itemsPath string) (*Input, error) {
	pf, err := os.Open(prefsPath)
	if err != nil {
		return nil, &InputFormatError{Path: prefsPath, Err: fmt.Errorf("open preferences: %w", err)}
	}
	defer pf.Close()
	prefs, err := ReadPreferences(pf, prefsPath)
	if err != nil {
		return nil, err
	}

	itf, err := os.Open(itemsPath)
	if err != nil {
		return nil, &InputFormatError{Path: itemsPath, Err: fmt.Errorf("open items: %w", err)}
	}
	defer itf.Close()
	items, err := ReadItems(itf, itemsPath)
	if err != nil {
		return nil, err
	}

	return Combine(prefs, items, prefsPath)
}
