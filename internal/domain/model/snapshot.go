package model

// Locale is the language/country pair captured as a side effect of a
// successful gtoken mint. SplatNet requests carry it in headers, and it
// must round-trip through persistence.
type Locale struct {
	Language string
	Country  string
}

// IsZero reports whether no locale data has been captured.
func (l Locale) IsZero() bool {
	return l.Language == "" && l.Country == ""
}

// Snapshot is the persistence view of a credential set: raw token values by
// kind, the captured locale, and a format version marker.
//
// Issue timestamps are deliberately not persisted. Loaded tokens are
// re-stamped at load time and verified by the liveness check instead.
type Snapshot struct {
	Tokens map[Kind]string
	Locale Locale
	// HasLocale records whether the source carried an auxiliary data
	// section at all. A config file without one is treated as fresh.
	HasLocale bool
	Version   string
}
