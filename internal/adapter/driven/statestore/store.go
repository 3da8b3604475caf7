// Package statestore implements the StateStore port: token snapshots are
// written to a sectioned config file and read back from that format, from
// environment variables, or from the legacy flat-JSON text format.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

// Credential environment variables. The session variable is mandatory for
// environment loads; the derived-token variables are optional.
const (
	EnvSessionToken = "INKGATE_SESSION_TOKEN"
	EnvGToken       = "INKGATE_GTOKEN"
	EnvBulletToken  = "INKGATE_BULLET_TOKEN"
)

var envVarByKind = map[model.Kind]string{
	model.KindSession: EnvSessionToken,
	model.KindGToken:  EnvGToken,
	model.KindBullet:  EnvBulletToken,
}

// Config file section and key names.
const (
	sectionTokens   = "tokens"
	sectionData     = "data"
	sectionMetadata = "metadata"

	keyLanguage = "language"
	keyCountry  = "country"
	keyVersion  = "version"
	keyManager  = "manager"

	managerMarker = "inkgate"
)

// Compile-time interface satisfaction check.
var _ driven.StateStore = (*Store)(nil)

// Store is the file/environment persistence adapter. It is stateless; the
// zero value is usable.
type Store struct{}

// New returns a Store.
func New() *Store {
	return &Store{}
}

// Save writes the snapshot to the sectioned config format at path. Sections:
// tokens (kind -> value), data (language, country), metadata (version and
// implementation marker).
func (s *Store) Save(path string, snap model.Snapshot) error {
	cfg := ini.Empty()

	tokens, err := cfg.NewSection(sectionTokens)
	if err != nil {
		return fmt.Errorf("building tokens section: %w", err)
	}
	for _, kind := range model.Kinds {
		if value, ok := snap.Tokens[kind]; ok && value != "" {
			if _, err := tokens.NewKey(string(kind), value); err != nil {
				return fmt.Errorf("writing %s: %w", kind, err)
			}
		}
	}

	if snap.HasLocale {
		data, err := cfg.NewSection(sectionData)
		if err != nil {
			return fmt.Errorf("building data section: %w", err)
		}
		if _, err := data.NewKey(keyLanguage, snap.Locale.Language); err != nil {
			return fmt.Errorf("writing language: %w", err)
		}
		if _, err := data.NewKey(keyCountry, snap.Locale.Country); err != nil {
			return fmt.Errorf("writing country: %w", err)
		}
	}

	metadata, err := cfg.NewSection(sectionMetadata)
	if err != nil {
		return fmt.Errorf("building metadata section: %w", err)
	}
	if _, err := metadata.NewKey(keyVersion, snap.Version); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if _, err := metadata.NewKey(keyManager, managerMarker); err != nil {
		return fmt.Errorf("writing manager marker: %w", err)
	}

	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("saving config to %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads a snapshot from the sectioned config format. A file
// without a tokens section is structurally invalid; a file without a data
// section is valid but flagged as carrying no auxiliary data.
func (s *Store) LoadConfig(path string) (model.Snapshot, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Snapshot{}, fmt.Errorf("loading config from %s: %w", path, err)
		}
		return model.Snapshot{}, fmt.Errorf("%w: %s: %v", model.ErrConfigFormat, path, err)
	}

	tokens, err := cfg.GetSection(sectionTokens)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s has no tokens section", model.ErrConfigFormat, path)
	}

	snap := model.Snapshot{Tokens: make(map[model.Kind]string)}
	for _, kind := range model.Kinds {
		if tokens.HasKey(string(kind)) {
			snap.Tokens[kind] = tokens.Key(string(kind)).String()
		}
	}

	if data, err := cfg.GetSection(sectionData); err == nil {
		snap.HasLocale = true
		snap.Locale = model.Locale{
			Language: data.Key(keyLanguage).String(),
			Country:  data.Key(keyCountry).String(),
		}
	}

	if metadata, err := cfg.GetSection(sectionMetadata); err == nil {
		snap.Version = metadata.Key(keyVersion).String()
	}

	return snap, nil
}

// legacyState matches the flat-JSON text format kept for compatibility with
// older tooling.
type legacyState struct {
	SessionToken string `json:"session_token"`
	GToken       string `json:"gtoken"`
	BulletToken  string `json:"bullettoken"`
	AccLoc       string `json:"acc_loc"` // "language|country"
}

// LoadTextFile reads a snapshot from the legacy flat-JSON format.
func (s *Store) LoadTextFile(path string) (model.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("reading text file %s: %w", path, err)
	}

	var state legacyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s: %v", model.ErrConfigFormat, path, err)
	}
	if state.SessionToken == "" {
		return model.Snapshot{}, fmt.Errorf("%w: %s", model.ErrMissingCredential, path)
	}

	snap := model.Snapshot{Tokens: map[model.Kind]string{
		model.KindSession: state.SessionToken,
	}}
	if state.GToken != "" {
		snap.Tokens[model.KindGToken] = state.GToken
	}
	if state.BulletToken != "" {
		snap.Tokens[model.KindBullet] = state.BulletToken
	}
	if language, country, found := strings.Cut(state.AccLoc, "|"); found {
		snap.HasLocale = true
		snap.Locale = model.Locale{Language: language, Country: country}
	}
	return snap, nil
}

// LoadEnvironment reads a snapshot from the credential environment
// variables.
func (s *Store) LoadEnvironment() (model.Snapshot, error) {
	if os.Getenv(EnvSessionToken) == "" {
		return model.Snapshot{}, fmt.Errorf("%w: %s not set", model.ErrMissingCredential, EnvSessionToken)
	}

	snap := model.Snapshot{Tokens: make(map[model.Kind]string)}
	for kind, name := range envVarByKind {
		if value := os.Getenv(name); value != "" {
			snap.Tokens[kind] = value
		}
	}
	return snap, nil
}

// HasEnvironment reports whether any credential environment variable is set.
func (s *Store) HasEnvironment() bool {
	for _, name := range envVarByKind {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
