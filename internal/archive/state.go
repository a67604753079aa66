package archive

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// State is one HSM flag reported for a file.
type State string

const (
	// StateExists means the file is registered for archiving.
	StateExists State = "exists"

	// StateArchived means a tape copy of the file exists.
	StateArchived State = "archived"

	// StateReleased means the disk copy has been freed.
	StateReleased State = "released"

	// StateDirty means the disk copy changed since it was archived.
	StateDirty State = "dirty"
)

// Has reports whether s is among states.
func Has(states []State, s State) bool {
	return slices.Contains(states, s)
}

// Status is one parsed line of "lfs hsm_state" output.
type Status struct {
	Path      string
	Flags     uint64
	States    []State
	ArchiveID string
}

// statusLine matches "<path>: (<hex>)<rest>".
var statusLine = regexp.MustCompile(`^(.+): \((0x[0-9a-fA-F]+)\)(.*)$`)

// ParseStatus parses a status line of the form
//
//	/lustre/f.bam: (0x00000009) exists archived,archive_id:1
//
// An unregistered file reports only the flags: "/lustre/f.bam: (0x00000000)".
// Only the first non-empty line of output is considered.
func ParseStatus(output string) (Status, error) {
	line := firstLine(output)
	if line == "" {
		return Status{}, fmt.Errorf("%w: no output", ErrUnparseable)
	}

	m := statusLine.FindStringSubmatch(line)
	if m == nil {
		return Status{}, fmt.Errorf("%w: %q", ErrUnparseable, line)
	}

	flags, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(m[2]), "0x"), 16, 64)
	if err != nil {
		return Status{}, fmt.Errorf("%w: flags %q: %w", ErrUnparseable, m[2], err)
	}

	st := Status{Path: m[1], Flags: flags}

	rest := strings.TrimSpace(m[3])
	if rest == "" {
		return st, nil
	}
	statePart, idPart, _ := strings.Cut(rest, ",")
	for _, f := range strings.Fields(statePart) {
		st.States = append(st.States, State(f))
	}
	idPart = strings.TrimSpace(idPart)
	st.ArchiveID = strings.TrimSpace(strings.TrimPrefix(idPart, "archive_id:"))
	return st, nil
}

func firstLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
