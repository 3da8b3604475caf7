package model

// Source identifies where a manager's working credential set came from.
type Source string

const (
	SourceMemory      Source = "memory"
	SourceEnvironment Source = "env"
	SourceConfigFile  Source = "config_file"
	SourceTextFile    Source = "text_file"
)

// Origin records the construction source of a credential set plus an
// optional locator, the file path for file-backed sources. It is set
// exactly once at construction and consulted when resolving the default
// save target.
type Origin struct {
	Source  Source
	Locator string
}
