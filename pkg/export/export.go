// Package export renders committed schedules for downstream systems.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openrota/openrota/core/model"
)

// Row is one exported schedule line, resolved to human-readable names.
type Row struct {
	Person   string    `json:"person"`
	Date     time.Time `json:"date"`
	Half     string    `json:"half"`
	Role     string    `json:"role"`
	Rotation string    `json:"rotation"`
	Score    float64   `json:"score"`
	Voided   bool      `json:"voided,omitempty"`
}

// Resolver turns assignment references into names. The planning
// snapshot satisfies it.
type Resolver interface {
	Person(id uuid.UUID) (model.Person, bool)
	Block(id uuid.UUID) (model.Block, bool)
}

// Rows resolves assignments against the view, preserving input order.
// Rows referencing unknown people or blocks are skipped.
func Rows(view Resolver, assignments []model.Assignment) []Row {
	rows := make([]Row, 0, len(assignments))
	for _, a := range assignments {
		p, ok := view.Person(a.PersonID)
		if !ok {
			continue
		}
		b, ok := view.Block(a.BlockID)
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Person:   p.Name,
			Date:     b.Date,
			Half:     b.Half.String(),
			Role:     a.Role.String(),
			Rotation: a.Rotation,
			Score:    a.Score,
			Voided:   a.Voided,
		})
	}
	return rows
}

// WriteJSON writes the rows to w as a JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteCSV writes the rows to w with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"person", "date", "half", "role", "rotation", "score"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Person,
			r.Date.Format("2006-01-02"),
			r.Half,
			r.Role,
			r.Rotation,
			strconv.FormatFloat(r.Score, 'f', 4, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
