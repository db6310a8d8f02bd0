package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/refdata"
)

// matrix holds the resolved target dimensions for one run.
type matrix struct {
	Countries []refdata.Country
	Languages []refdata.Language
	Themes    []refdata.Theme
}

// resolveMatrix turns the program's id-sets into concrete reference rows;
// empty sets resolve to all active rows.
func (r *Runner) resolveMatrix(ctx context.Context, p *domain.Program) (*matrix, error) {
	countries, err := r.refdata.Countries(ctx, p.CountryIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve countries: %w", err)
	}
	languages, err := r.refdata.Languages(ctx, p.LanguageIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve languages: %w", err)
	}
	themes, err := r.refdata.Themes(ctx, p.ThemeIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve themes: %w", err)
	}
	if len(countries) == 0 {
		return nil, fmt.Errorf("%w: no active countries resolved", domain.ErrInvalidProgram)
	}
	if len(languages) == 0 {
		return nil, fmt.Errorf("%w: no active languages resolved", domain.ErrInvalidProgram)
	}
	return &matrix{Countries: countries, Languages: languages, Themes: themes}, nil
}

// target is one (country, language) pair an item will be generated for.
type target struct {
	countryID  int64
	languageID int64
}

// expandItems generates the run's pending items from the resolved matrix
// according to the program's quantity mode:
//
//	total:                value items per content type, round-robin over country×language
//	per_country:          value items per content type per country, in its primary language
//	per_language:         value items per content type per language, countries round-robin
//	per_country_language: value items per content type per (country, language) pair
//
// Themes, when resolved, are cycled across the created items.
func expandItems(p *domain.Program, run *domain.ProgramRun, m *matrix, now time.Time) []domain.ProgramItem {
	items := make([]domain.ProgramItem, 0, run.ItemsPlanned)
	themeCursor := 0

	for _, contentType := range p.ContentTypes {
		for _, t := range targetsFor(p, m) {
			item := domain.ProgramItem{
				ID:             uuid.New(),
				ProgramID:      p.ID,
				RunID:          run.ID,
				CountryID:      t.countryID,
				LanguageID:     t.languageID,
				GenerationType: domain.GenerationType(contentType),
				Status:         domain.ItemStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if len(m.Themes) > 0 {
				themeID := m.Themes[themeCursor%len(m.Themes)].ID
				item.ThemeID = &themeID
				themeCursor++
			}
			items = append(items, item)
		}
	}
	return items
}

// targetsFor lists the (country, language) pairs one content type expands
// into, already multiplied by the quantity value.
func targetsFor(p *domain.Program, m *matrix) []target {
	switch p.QuantityMode {
	case domain.QuantityTotal:
		combos := crossProduct(m)
		targets := make([]target, 0, p.QuantityValue)
		for i := 0; i < p.QuantityValue; i++ {
			targets = append(targets, combos[i%len(combos)])
		}
		return targets

	case domain.QuantityPerCountry:
		targets := make([]target, 0, p.QuantityValue*len(m.Countries))
		for _, c := range m.Countries {
			languageID := c.PrimaryLanguageID
			if languageID == 0 {
				languageID = m.Languages[0].ID
			}
			for i := 0; i < p.QuantityValue; i++ {
				targets = append(targets, target{countryID: c.ID, languageID: languageID})
			}
		}
		return targets

	case domain.QuantityPerLanguage:
		targets := make([]target, 0, p.QuantityValue*len(m.Languages))
		cursor := 0
		for _, l := range m.Languages {
			for i := 0; i < p.QuantityValue; i++ {
				country := m.Countries[cursor%len(m.Countries)]
				cursor++
				targets = append(targets, target{countryID: country.ID, languageID: l.ID})
			}
		}
		return targets

	case domain.QuantityPerCountryLanguage:
		targets := make([]target, 0, p.QuantityValue*len(m.Countries)*len(m.Languages))
		for _, c := range m.Countries {
			for _, l := range m.Languages {
				for i := 0; i < p.QuantityValue; i++ {
					targets = append(targets, target{countryID: c.ID, languageID: l.ID})
				}
			}
		}
		return targets
	}
	return nil
}

func crossProduct(m *matrix) []target {
	combos := make([]target, 0, len(m.Countries)*len(m.Languages))
	for _, c := range m.Countries {
		for _, l := range m.Languages {
			combos = append(combos, target{countryID: c.ID, languageID: l.ID})
		}
	}
	return combos
}
