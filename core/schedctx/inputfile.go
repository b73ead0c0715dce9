package schedctx

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openrota/openrota/core/model"
)

const dateLayout = "2006-01-02"

// rosterNamespace seeds the deterministic IDs derived from roster
// documents: loading the same document twice yields the same person and
// block IDs, so separate invocations agree on identity.
var rosterNamespace = uuid.MustParse("9d5f2c9e-43a1-4b7e-8a43-0f6c1de1b9aa")

func rosterID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(rosterNamespace, []byte(kind+"|"+name))
}

// roster is the on-disk planning document. People are identified by
// name inside the file; IDs are derived from names and dates at load
// time.
type roster struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Holidays []string `json:"holidays"`

	Residents []rosterPerson   `json:"residents"`
	Faculty   []rosterPerson   `json:"faculty"`
	Templates []rosterTemplate `json:"templates"`
	Absences  []rosterAbsence  `json:"absences"`
}

type rosterPerson struct {
	Name             string   `json:"name"`
	TrainingYear     int      `json:"training_year"`
	SupervisionRatio int      `json:"supervision_ratio"`
	Specialties      []string `json:"specialties"`
	MoonlightHours   float64  `json:"moonlight_hours"`
}

type rosterTemplate struct {
	Name      string `json:"name"`
	Rotation  string `json:"rotation"`
	MinHeads  int    `json:"min_heads"`
	MaxHeads  int    `json:"max_heads"`
	Specialty string `json:"specialty"`
}

type rosterAbsence struct {
	Person   string `json:"person"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Type     string `json:"type"` // vacation | sick | conference
	Blocking bool   `json:"blocking"`
}

// LoadInputFile reads a JSON or YAML planning document and expands it
// into a solver input: day blocks for the date range, people with
// minted IDs and absences resolved by person name.
func LoadInputFile(path string) (Input, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return Input{}, fmt.Errorf("unsupported roster format: %s", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Input{}, err
	}
	var doc roster
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Input{}, err
	}
	return doc.expand()
}

func (r roster) expand() (Input, error) {
	start, err := time.Parse(dateLayout, r.Start)
	if err != nil {
		return Input{}, fmt.Errorf("roster start: %w", err)
	}
	end, err := time.Parse(dateLayout, r.End)
	if err != nil {
		return Input{}, fmt.Errorf("roster end: %w", err)
	}
	if end.Before(start) {
		return Input{}, fmt.Errorf("roster range %s to %s is inverted", r.Start, r.End)
	}

	holidays := make(map[string]bool, len(r.Holidays))
	for _, h := range r.Holidays {
		if _, err := time.Parse(dateLayout, h); err != nil {
			return Input{}, fmt.Errorf("roster holiday %q: %w", h, err)
		}
		holidays[h] = true
	}

	byName := make(map[string]uuid.UUID)
	addPerson := func(rp rosterPerson, role model.Role) (model.Person, error) {
		if rp.Name == "" {
			return model.Person{}, fmt.Errorf("roster person with empty name")
		}
		if _, dup := byName[rp.Name]; dup {
			return model.Person{}, fmt.Errorf("duplicate roster name %q", rp.Name)
		}
		p := model.Person{
			ID:               rosterID("person", rp.Name),
			Name:             rp.Name,
			Role:             role,
			TrainingYear:     rp.TrainingYear,
			SupervisionRatio: rp.SupervisionRatio,
			Specialties:      rp.Specialties,
			MoonlightHours:   rp.MoonlightHours,
		}
		byName[rp.Name] = p.ID
		return p, nil
	}

	in := Input{Blocks: model.GenerateBlocks(start, end, holidays)}
	for i, b := range in.Blocks {
		in.Blocks[i].ID = rosterID("block", b.Date.Format(dateLayout)+"|"+b.Half.String())
	}
	for _, rp := range r.Residents {
		p, err := addPerson(rp, model.RoleTrainee)
		if err != nil {
			return Input{}, err
		}
		in.Residents = append(in.Residents, p)
	}
	for _, rp := range r.Faculty {
		p, err := addPerson(rp, model.RoleSupervisor)
		if err != nil {
			return Input{}, err
		}
		in.Faculty = append(in.Faculty, p)
	}

	for _, rt := range r.Templates {
		if rt.Rotation == "" {
			return Input{}, fmt.Errorf("roster template %q: rotation is required", rt.Name)
		}
		in.Templates = append(in.Templates, model.RotationTemplate{
			ID:        rosterID("template", rt.Rotation+"|"+rt.Name),
			Name:      rt.Name,
			Rotation:  rt.Rotation,
			MinHeads:  rt.MinHeads,
			MaxHeads:  rt.MaxHeads,
			Specialty: rt.Specialty,
		})
	}

	for _, ra := range r.Absences {
		pid, ok := byName[ra.Person]
		if !ok {
			return Input{}, fmt.Errorf("absence references unknown person %q", ra.Person)
		}
		astart, err := time.Parse(dateLayout, ra.Start)
		if err != nil {
			return Input{}, fmt.Errorf("absence start for %q: %w", ra.Person, err)
		}
		aend, err := time.Parse(dateLayout, ra.End)
		if err != nil {
			return Input{}, fmt.Errorf("absence end for %q: %w", ra.Person, err)
		}
		atype, err := parseAbsenceType(ra.Type)
		if err != nil {
			return Input{}, err
		}
		in.Absences = append(in.Absences, model.Absence{
			ID:       uuid.New(),
			PersonID: pid,
			Start:    astart,
			End:      aend,
			Type:     atype,
			Blocking: ra.Blocking,
		})
	}
	return in, nil
}

func parseAbsenceType(s string) (model.AbsenceType, error) {
	switch strings.ToLower(s) {
	case "", "vacation":
		return model.AbsenceVacation, nil
	case "sick":
		return model.AbsenceSick, nil
	case "conference":
		return model.AbsenceConference, nil
	default:
		return 0, fmt.Errorf("unknown absence type %q", s)
	}
}
