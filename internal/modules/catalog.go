package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/onramp-hpc/pce/internal/model"
)

// Available scans the source catalogue root and returns one entry per module
// directory, each in the virtual state "Available". Entries carry no id or
// installed path; checking one out creates the persisted record that does.
// Hidden directories and plain files are skipped. A missing catalogue root is
// an empty catalogue, not an error.
func (c *Controller) Available() ([]*model.Module, error) {
	entries, err := os.ReadDir(c.availableRoot)
	if os.IsNotExist(err) {
		return []*model.Module{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalogue root: %w", err)
	}

	avail := []*model.Module{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path, err := filepath.Abs(filepath.Join(c.availableRoot, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve catalogue path: %w", err)
		}
		avail = append(avail, &model.Module{
			Name:   e.Name(),
			Source: model.SourceLocation{Kind: model.SourceKindLocal, Path: path},
			State:  model.ModuleAvailable,
		})
	}

	sort.Slice(avail, func(i, j int) bool { return avail[i].Name < avail[j].Name })
	return avail, nil
}
