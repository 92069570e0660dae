package migrate

// Classification tags a planned step
type Classification string

const (
	// Skip means the object already exists with a compatible shape; the
	// step produces no database interaction.
	Skip Classification = "skip"
	// Apply means the step is safe to execute directly
	Apply Classification = "apply"
	// Destructive means no value-preserving conversion path exists; the
	// whole unit is blocked unless explicitly authorized.
	Destructive Classification = "destructive"
)

// Statement is one executable SQL statement with its arguments
type Statement struct {
	SQL  string
	Args []interface{}
}

// Step is one classified operation in a plan
type Step struct {
	Op         Operation
	Class      Classification
	Rationale  string
	Statements []Statement
}

// Plan is the ordered, classified operation sequence for one unit. It is
// built once per execution against a fresh snapshot and discarded after.
type Plan struct {
	UnitID int64
	Steps  []Step
}

// HasDestructive reports whether any step was classified destructive
func (p *Plan) HasDestructive() bool {
	for _, s := range p.Steps {
		if s.Class == Destructive {
			return true
		}
	}
	return false
}

// Counts returns how many steps will execute and how many are no-ops.
// Destructive steps count as executable once authorized.
func (p *Plan) Counts() (apply, skip int) {
	for _, s := range p.Steps {
		switch s.Class {
		case Skip:
			skip++
		default:
			apply++
		}
	}
	return apply, skip
}
