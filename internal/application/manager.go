// Package application composes the domain model with the driven ports: the
// derivation engine and the token lifecycle manager live here.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

// Version is written into the metadata section of saved config files.
const Version = "0.3.0"

// Default locations for persisted credentials. Load() tries the default
// config path first, then the environment, then the legacy path.
const (
	DefaultConfigPath = ".inkgate"
	LegacyConfigPath  = "tokens.ini"
)

// Options carries the collaborators a Manager needs. Now defaults to
// time.Now and DefaultPath to DefaultConfigPath when left zero.
type Options struct {
	Client          driven.AuthClient
	Attestor        driven.Attestor
	AttestEndpoints []string
	Store           driven.StateStore
	DefaultPath     string
	Now             func() time.Time
}

// Manager owns one keychain and drives the token lifecycle: lazy
// derivation of missing or expired tokens, liveness checking, and
// persistence. A Manager expects a single writer; independent Managers may
// run concurrently since they share no state.
type Manager struct {
	keychain    *model.Keychain
	deriver     *Deriver
	store       driven.StateStore
	origin      model.Origin
	locale      model.Locale
	defaultPath string
	now         func() time.Time
}

func newManager(opts Options, origin model.Origin) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaultPath := opts.DefaultPath
	if defaultPath == "" {
		defaultPath = DefaultConfigPath
	}
	return &Manager{
		keychain:    model.NewKeychain(),
		deriver:     NewDeriver(opts.Client, opts.Attestor, opts.AttestEndpoints),
		store:       opts.Store,
		origin:      origin,
		defaultPath: defaultPath,
		now:         now,
	}
}

// FromSessionToken creates a Manager seeded with just a session token.
// Derived tokens are minted lazily on first access.
func FromSessionToken(opts Options, sessionToken string) (*Manager, error) {
	if sessionToken == "" {
		return nil, fmt.Errorf("%w: empty session token", model.ErrMissingCredential)
	}
	m := newManager(opts, model.Origin{Source: model.SourceMemory})
	m.keychain.Add(model.KindSession, sessionToken, m.now())
	return m, nil
}

// FromEnvironment creates a Manager from the credential environment
// variables and verifies the loaded set with a liveness check.
func FromEnvironment(ctx context.Context, opts Options) (*Manager, error) {
	snap, err := opts.Store.LoadEnvironment()
	if err != nil {
		return nil, err
	}
	m := newManager(opts, model.Origin{Source: model.SourceEnvironment})
	m.applySnapshot(snap)
	if err := m.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// FromConfigFile creates a Manager from a sectioned config file. A file
// with tokens but no data section is treated as fresh: every derived token
// is minted instead of probed.
func FromConfigFile(ctx context.Context, opts Options, path string) (*Manager, error) {
	snap, err := opts.Store.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	m := newManager(opts, model.Origin{Source: model.SourceConfigFile, Locator: path})
	m.applySnapshot(snap)

	if !snap.HasLocale {
		slog.Info("config file has no data section, deriving all tokens", "path", path)
		if err := m.deriveGToken(ctx); err != nil {
			return nil, err
		}
		if err := m.deriveBulletToken(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}

	if err := m.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// FromLegacyTextFile creates a Manager from the legacy flat-JSON format and
// verifies the loaded set with a liveness check.
func FromLegacyTextFile(ctx context.Context, opts Options, path string) (*Manager, error) {
	snap, err := opts.Store.LoadTextFile(path)
	if err != nil {
		return nil, err
	}
	m := newManager(opts, model.Origin{Source: model.SourceTextFile, Locator: path})
	m.applySnapshot(snap)
	if err := m.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Load tries the known credential sources in fixed order: the default
// config path, the environment, then the legacy config path.
func Load(ctx context.Context, opts Options) (*Manager, error) {
	defaultPath := opts.DefaultPath
	if defaultPath == "" {
		defaultPath = DefaultConfigPath
	}
	if fileExists(defaultPath) {
		return FromConfigFile(ctx, opts, defaultPath)
	}
	if opts.Store.HasEnvironment() {
		return FromEnvironment(ctx, opts)
	}
	if fileExists(LegacyConfigPath) {
		return FromConfigFile(ctx, opts, LegacyConfigPath)
	}
	return nil, fmt.Errorf("%w: no config file at %s or %s and no credential variables set",
		model.ErrNoCredentialSource, defaultPath, LegacyConfigPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// applySnapshot seeds the keychain and locale from persisted state. Loaded
// tokens are stamped with the load time; the liveness check catches any
// that are actually stale.
func (m *Manager) applySnapshot(snap model.Snapshot) {
	issuedAt := m.now()
	for _, kind := range model.Kinds {
		if value, ok := snap.Tokens[kind]; ok && value != "" {
			m.keychain.Add(kind, value, issuedAt)
		}
	}
	if snap.HasLocale {
		m.locale = snap.Locale
	}
}

// Keychain exposes the managed keychain, mainly for inspection.
func (m *Manager) Keychain() *model.Keychain {
	return m.keychain
}

// Origin reports where this Manager's credential set came from.
func (m *Manager) Origin() model.Origin {
	return m.origin
}

// Locale reports the language/country captured on the last gtoken mint or
// loaded from persistence.
func (m *Manager) Locale() model.Locale {
	return m.locale
}

// SessionToken returns the session token.
func (m *Manager) SessionToken() (string, error) {
	return m.keychain.Value(model.KindSession)
}

// GToken returns a usable gtoken, minting one first if the stored entry is
// absent, empty, or expired.
func (m *Manager) GToken(ctx context.Context) (string, error) {
	if !m.fresh(model.KindGToken) {
		if err := m.deriveGToken(ctx); err != nil {
			return "", err
		}
	}
	return m.keychain.Value(model.KindGToken)
}

// BulletToken returns a usable bullet token, minting one first if the
// stored entry is absent, empty, or expired.
func (m *Manager) BulletToken(ctx context.Context) (string, error) {
	if !m.fresh(model.KindBullet) {
		if err := m.deriveBulletToken(ctx); err != nil {
			return "", err
		}
	}
	return m.keychain.Value(model.KindBullet)
}

// fresh reports whether a credential of the given kind is present,
// non-empty, and not expired.
func (m *Manager) fresh(kind model.Kind) bool {
	cred, err := m.keychain.Get(kind)
	return err == nil && cred.IsValid() && !cred.ExpiredAt(m.now())
}

// deriveGToken mints a fresh gtoken and captures the locale. A previously
// cached bullet token is only implicitly invalidated; callers that force a
// gtoken refresh must re-derive the bullet token afterwards.
func (m *Manager) deriveGToken(ctx context.Context) error {
	session, err := m.keychain.Value(model.KindSession)
	if err != nil {
		return fmt.Errorf("%w: session token must be set before minting a gtoken", model.ErrPrecondition)
	}

	gtoken, locale, err := m.deriver.DeriveGToken(ctx, session)
	if err != nil {
		return err
	}

	m.keychain.Add(model.KindGToken, gtoken, m.now())
	m.locale = locale
	slog.Info("gtoken minted", "language", locale.Language, "country", locale.Country)
	return nil
}

// deriveBulletToken runs the bullet sequence with its single bounded retry:
// if the mint answers with an empty token, the whole sequence (including
// the gtoken freshness check) runs exactly once more. Transport errors
// propagate immediately and are never retried, and gtoken derivation
// failures are likewise unretried.
func (m *Manager) deriveBulletToken(ctx context.Context) error {
	if !m.keychain.IsValid(model.KindSession) {
		return fmt.Errorf("%w: session token must be set before minting a bullet token", model.ErrPrecondition)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if !m.fresh(model.KindGToken) {
			if err := m.deriveGToken(ctx); err != nil {
				return err
			}
		}
		gtoken, err := m.keychain.Value(model.KindGToken)
		if err != nil {
			return err
		}

		value, err := m.deriver.MintBulletToken(ctx, gtoken, m.locale)
		if err != nil {
			return err
		}
		if value != "" {
			m.keychain.Add(model.KindBullet, value, m.now())
			slog.Info("bullet token minted", "attempt", attempt)
			return nil
		}
		slog.Warn("bullet token mint returned empty token", "attempt", attempt)
	}

	return fmt.Errorf("%w: bullet token still empty after retry", model.ErrUpstreamUnavailable)
}

// EnsureFresh makes the derived tokens usable: invalid or expired entries
// are re-minted, then a liveness probe confirms the set against the live
// service. A failed probe is not surfaced as an error; it triggers full
// regeneration instead.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	if !m.keychain.IsValid(model.KindSession) {
		return fmt.Errorf("%w: session token is not set", model.ErrPrecondition)
	}

	if !m.fresh(model.KindGToken) {
		if err := m.deriveGToken(ctx); err != nil {
			return err
		}
	}
	if !m.fresh(model.KindBullet) {
		if err := m.deriveBulletToken(ctx); err != nil {
			return err
		}
	}

	gtoken, err := m.keychain.Value(model.KindGToken)
	if err != nil {
		return err
	}
	bullet, err := m.keychain.Value(model.KindBullet)
	if err != nil {
		return err
	}

	if err := m.deriver.Probe(ctx, gtoken, bullet, m.locale); err != nil {
		slog.Info("liveness probe failed, regenerating tokens", "error", err)
		if err := m.deriveGToken(ctx); err != nil {
			return err
		}
		if err := m.deriveBulletToken(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the keychain, locale data, and format metadata to the
// sectioned config format. An empty path resolves to the origin's config
// file when the Manager was loaded from one, else the default path.
// includeSession=false strips the session token from the saved snapshot.
func (m *Manager) Save(path string, includeSession bool) error {
	if path == "" {
		if m.origin.Source == model.SourceConfigFile && m.origin.Locator != "" {
			path = m.origin.Locator
		} else {
			path = m.defaultPath
		}
	}

	tokens := m.keychain.Values()
	if !includeSession {
		delete(tokens, model.KindSession)
	}

	snap := model.Snapshot{
		Tokens:    tokens,
		Locale:    m.locale,
		HasLocale: !m.locale.IsZero(),
		Version:   Version,
	}
	if err := m.store.Save(path, snap); err != nil {
		return err
	}
	slog.Info("credentials saved", "path", path, "include_session", includeSession)
	return nil
}
