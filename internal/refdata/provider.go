// Package refdata provides read-only reference data (countries,
// languages, content themes) for item expansion. The provider is
// injected into the runner rather than read ambiently so expansion is
// testable against a static snapshot.
package refdata

import "context"

// Country is one active target market. PrimaryLanguageID is the language
// used when a program's quantity mode is per_country.
type Country struct {
	ID                int64
	Code              string
	Name              string
	PrimaryLanguageID int64
}

// Language is one active content language.
type Language struct {
	ID   int64
	Code string
	Name string
}

// Theme is one active content theme.
type Theme struct {
	ID   int64
	Name string
}

// Provider resolves reference data. Resolve methods take an explicit
// id-set and return the matching active rows; an empty set means "all
// currently active".
type Provider interface {
	Countries(ctx context.Context, ids []int64) ([]Country, error)
	Languages(ctx context.Context, ids []int64) ([]Language, error)
	Themes(ctx context.Context, ids []int64) ([]Theme, error)
}
