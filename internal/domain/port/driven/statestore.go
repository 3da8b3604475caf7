package driven

import "github.com/mizuleaf/inkgate/internal/domain/model"

// StateStore defines the driven port for persisting and restoring a token
// snapshot across the supported sources.
type StateStore interface {
	// LoadConfig reads the sectioned config format. Returns
	// model.ErrConfigFormat if the tokens section is absent or the file
	// cannot be parsed.
	LoadConfig(path string) (model.Snapshot, error)

	// LoadTextFile reads the legacy flat-JSON format. Returns
	// model.ErrMissingCredential if the session token field is absent.
	LoadTextFile(path string) (model.Snapshot, error)

	// LoadEnvironment reads the credential environment variables. Returns
	// model.ErrMissingCredential if the session variable is unset.
	LoadEnvironment() (model.Snapshot, error)

	// HasEnvironment reports whether any recognized credential variable is
	// set.
	HasEnvironment() bool

	// Save writes the snapshot in the sectioned config format.
	Save(path string, snap model.Snapshot) error
}
