package model

import "time"

// Module lifecycle states. Available is virtual: it marks a source catalogue
// entry that has never been checked out, so it appears in listings but never
// in a persisted record.
const (
	ModuleAvailable      = "Available"
	ModuleCheckingOut    = "Checking out"
	ModuleInstalled      = "Installed"
	ModuleCheckoutFailed = "Checkout failed"
	ModuleDeploying      = "Deploying"
	ModuleReady          = "Module ready"
	ModuleDeployFailed   = "Deploy failed"
)

// Source location kinds. Only local checkouts are supported today; the kind
// tag leaves room for remote repository sources.
const (
	SourceKindLocal = "local"
)

// SourceLocation identifies where a module's source is fetched from.
type SourceLocation struct {
	Kind string `json:"kind" yaml:"kind"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Module is the record for one module instance. InstalledPath is empty until
// the module reaches Installed; Error is empty unless the last transition
// failed. Available catalogue entries carry only Name, Source and State; the
// id and timestamps exist once a checkout creates the persisted record.
type Module struct {
	ID            int            `json:"id,omitempty"`
	Name          string         `json:"name"`
	Source        SourceLocation `json:"source"`
	State         string         `json:"state"`
	InstalledPath string         `json:"installed_path,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero"`
	UpdatedAt     time.Time      `json:"updated_at,omitzero"`

	// Extra holds fields the orchestration core never interprets, so the
	// API layer can attach richer payloads without a schema change here.
	Extra map[string]any `json:"extra,omitempty"`
}

// ModuleInstalledOrLater reports whether a module state is at or past
// Installed, i.e. the install directory exists on disk.
func ModuleInstalledOrLater(state string) bool {
	switch state {
	case ModuleInstalled, ModuleDeploying, ModuleReady, ModuleDeployFailed:
		return true
	}
	return false
}

// ModuleFailed reports whether a module state denotes a failed transition.
func ModuleFailed(state string) bool {
	return state == ModuleCheckoutFailed || state == ModuleDeployFailed
}
