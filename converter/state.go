package converter

type State int

const (
	Validating State = iota
	Decoding
	SinglePage
	MultiPageRaw
	MultiPageCompressed
	Assembling
	Reporting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Decoding:
		return "decoding"
	case SinglePage:
		return "single-page"
	case MultiPageRaw:
		return "multi-page-raw"
	case MultiPageCompressed:
		return "multi-page-compressed"
	case Assembling:
		return "assembling"
	case Reporting:
		return "reporting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions lists the legal successors of every state; Failed is reachable
// from any non-terminal state.
var transitions = map[State][]State{
	Validating:          {Decoding},
	Decoding:            {SinglePage, MultiPageRaw, MultiPageCompressed},
	SinglePage:          {Assembling},
	MultiPageRaw:        {Assembling},
	MultiPageCompressed: {Assembling},
	Assembling:          {Reporting},
	Reporting:           {Done},
}

func canTransition(from, to State) bool {
	if from == Done || from == Failed {
		return false
	}
	if to == Failed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
