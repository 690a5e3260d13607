package parser

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

type (
	// Markers holds the directive flags recognized in the leading comments
	// of a statement. Directives never change the classification of the
	// statement itself; they are consumed when a collection expands.
	Markers struct {
		// AutoProc carries the parsed AUTOPROC directive, or nil when the
		// statement has none.
		AutoProc *AutoProcDirective

		// IndexedView is true when the statement carries the INDEXEDVIEW
		// directive, marking a schema-bound view that must hold its
		// install slot ahead of any index defined over it.
		IndexedView bool
	}

	// AutoProcDirective describes one AUTOPROC directive:
	//
	//	-- AUTOPROC <verb-list> [<table-name>]
	//
	// The verb list selects which CRUD procedures to generate. The table
	// name is optional when the directive leads a CREATE TABLE statement,
	// in which case it applies to that table.
	AutoProcDirective struct {
		// Verbs are the requested generation verbs (Insert, Update,
		// Delete, Select), expanded from All where used.
		Verbs []string

		// Table is the canonical name of the target table, empty when the
		// directive applies to the statement it leads.
		Table string
	}
)

// AutoProc verb names. All expands to every verb in generation order.
const (
	VerbInsert = "Insert"
	VerbUpdate = "Update"
	VerbDelete = "Delete"
	VerbSelect = "Select"
	VerbAll    = "All"
)

// allVerbs is the generation order used when a directive names All.
var allVerbs = []string{VerbInsert, VerbUpdate, VerbDelete, VerbSelect}

// parseMarkers inspects the comment tokens preceding the first significant
// token of a statement and extracts directive markers.
func parseMarkers(tokens []token) (Markers, error) {
	var m Markers

	for _, t := range tokens {
		if !t.isComment() {
			break
		}
		if t.Kind != "Comment" {
			continue
		}

		body := strings.TrimSpace(strings.TrimPrefix(t.Value, "--"))
		fields := strings.Fields(body)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "INDEXEDVIEW":
			m.IndexedView = true
		case "AUTOPROC":
			directive, err := parseAutoProc(fields[1:])
			if err != nil {
				return m, err
			}
			m.AutoProc = directive
		}
	}

	return m, nil
}

func parseAutoProc(fields []string) (*AutoProcDirective, error) {
	if len(fields) == 0 {
		return nil, errors.New("AUTOPROC directive requires a verb list")
	}

	// A trailing bracketed token names the target table.
	table := ""
	if last := fields[len(fields)-1]; strings.HasPrefix(last, "[") {
		table = utils.CanonicalName(last)
		fields = fields[:len(fields)-1]
	}

	var verbs []string
	for _, f := range fields {
		for _, v := range strings.Split(f, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			verb, err := normalizeVerb(v)
			if err != nil {
				return nil, err
			}
			if verb == VerbAll {
				verbs = append(verbs, allVerbs...)
				continue
			}
			verbs = append(verbs, verb)
		}
	}

	if len(verbs) == 0 {
		return nil, errors.New("AUTOPROC directive requires a verb list")
	}

	return &AutoProcDirective{Verbs: dedupeVerbs(verbs), Table: table}, nil
}

func normalizeVerb(v string) (string, error) {
	for _, known := range []string{VerbAll, VerbInsert, VerbUpdate, VerbDelete, VerbSelect} {
		if strings.EqualFold(v, known) {
			return known, nil
		}
	}
	return "", errors.Errorf("unknown AUTOPROC verb: %s", v)
}

func dedupeVerbs(verbs []string) []string {
	seen := make(map[string]bool, len(verbs))
	out := verbs[:0]
	for _, v := range verbs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
