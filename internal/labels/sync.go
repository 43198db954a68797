package labels

import (
	"fmt"
	"strings"
)

// Repository is the label API of the hosting service.
type Repository interface {
	ListLabels(repo string) ([]Def, error)
	CreateLabel(repo string, def Def) error
	EditLabel(repo string, def Def) error
	DeleteLabel(repo string, name string) error
}

// SyncOp is what Sync did to one label.
type SyncOp string

const (
	OpOK      SyncOp = "ok"
	OpCreated SyncOp = "created"
	OpUpdated SyncOp = "updated"
	OpDeleted SyncOp = "deleted"
	OpFailed  SyncOp = "failed"
)

// SyncAction records the outcome for one label.
type SyncAction struct {
	Name string
	Op   SyncOp
	Err  error
}

// managedPrefixes marks repository labels that belong to this tool.
var managedPrefixes = []string{"triage/", "fix/", "sp/", "P"}

// IsManagedName reports whether name looks like one of our labels.
func IsManagedName(name string) bool {
	for _, p := range managedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Sync creates missing labels and fixes color drift. With deleteUnused it
// also removes managed-looking labels that are not in the table. A failure
// on one label is recorded and does not stop the others.
func Sync(r Repository, repo string, t *Table, deleteUnused bool) ([]SyncAction, error) {
	existing, err := r.ListLabels(repo)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	byName := make(map[string]Def, len(existing))
	for _, d := range existing {
		byName[d.Name] = d
	}

	var actions []SyncAction
	for _, def := range t.Defs {
		cur, ok := byName[def.Name]
		switch {
		case !ok:
			if err := r.CreateLabel(repo, def); err != nil {
				actions = append(actions, SyncAction{Name: def.Name, Op: OpFailed, Err: err})
				continue
			}
			actions = append(actions, SyncAction{Name: def.Name, Op: OpCreated})
		case !strings.EqualFold(cur.Color, def.Color):
			if err := r.EditLabel(repo, def); err != nil {
				actions = append(actions, SyncAction{Name: def.Name, Op: OpFailed, Err: err})
				continue
			}
			actions = append(actions, SyncAction{Name: def.Name, Op: OpUpdated})
		default:
			actions = append(actions, SyncAction{Name: def.Name, Op: OpOK})
		}
	}

	if !deleteUnused {
		return actions, nil
	}
	for _, d := range existing {
		if !IsManagedName(d.Name) {
			continue
		}
		if _, ok := t.Def(d.Name); ok {
			continue
		}
		if err := r.DeleteLabel(repo, d.Name); err != nil {
			actions = append(actions, SyncAction{Name: d.Name, Op: OpFailed, Err: err})
			continue
		}
		actions = append(actions, SyncAction{Name: d.Name, Op: OpDeleted})
	}
	return actions, nil
}
