package domain

import "fmt"

// ContentKind identifies the concrete produced-content variant an item or
// queue entry points at. Together with an ID it forms a tagged union over
// the content tables owned by the generation side.
type ContentKind string

const (
	ContentKindArticle      ContentKind = "article"
	ContentKindPressRelease ContentKind = "press_release"
	ContentKindDossier      ContentKind = "dossier"
)

// GenerationType names the kind of work a program item asks for. Several
// generation types map onto the same produced content kind (an article
// generated from a pillar brief is still an article).
type GenerationType string

const (
	GenerationArticle      GenerationType = "article"
	GenerationPillar       GenerationType = "pillar"
	GenerationComparative  GenerationType = "comparative"
	GenerationLanding      GenerationType = "landing"
	GenerationManual       GenerationType = "manual"
	GenerationPressRelease GenerationType = "press_release"
	GenerationDossier      GenerationType = "dossier"
)

// generationContentKinds maps each generation type to the content kind it produces.
var generationContentKinds = map[GenerationType]ContentKind{
	GenerationArticle:      ContentKindArticle,
	GenerationPillar:       ContentKindArticle,
	GenerationComparative:  ContentKindArticle,
	GenerationLanding:      ContentKindArticle,
	GenerationManual:       ContentKindArticle,
	GenerationPressRelease: ContentKindPressRelease,
	GenerationDossier:      ContentKindDossier,
}

// ContentKind returns the content kind this generation type produces.
func (g GenerationType) ContentKind() (ContentKind, error) {
	kind, ok := generationContentKinds[g]
	if !ok {
		return "", fmt.Errorf("unknown generation type %q", g)
	}
	return kind, nil
}

// Valid reports whether g is a known generation type.
func (g GenerationType) Valid() bool {
	_, ok := generationContentKinds[g]
	return ok
}

// ContentRef references one produced content entity.
type ContentRef struct {
	Kind ContentKind `json:"kind"`
	ID   string      `json:"id"`
}
