package scheduler_test

import (
	"testing"

	"github.com/onramp-hpc/pce/internal/scheduler"
)

func TestNewKnownType(t *testing.T) {
	d, err := scheduler.New(scheduler.TypeSLURM)
	if err != nil {
		t.Fatalf("New(SLURM): %v", err)
	}
	if d.Type() != scheduler.TypeSLURM {
		t.Errorf("driver type = %q, want %q", d.Type(), scheduler.TypeSLURM)
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := scheduler.New("PBS")
	if err == nil {
		t.Fatal("expected error for unknown scheduler type, got nil")
	}
}

func TestTypes(t *testing.T) {
	types := scheduler.Types()
	if len(types) == 0 {
		t.Fatal("Types() returned no scheduler types")
	}
	found := false
	for _, typ := range types {
		if typ == scheduler.TypeSLURM {
			found = true
		}
	}
	if !found {
		t.Errorf("Types() = %v, missing SLURM", types)
	}
}
