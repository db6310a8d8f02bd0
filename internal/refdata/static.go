package refdata

import "context"

// Static is an in-memory snapshot provider, used in tests and anywhere a
// fixed reference set is sufficient.
type Static struct {
	AllCountries []Country
	AllLanguages []Language
	AllThemes    []Theme
}

var _ Provider = (*Static)(nil)

// Countries returns the countries matching ids, or all when ids is empty.
func (s *Static) Countries(_ context.Context, ids []int64) ([]Country, error) {
	if len(ids) == 0 {
		return s.AllCountries, nil
	}
	want := idSet(ids)
	out := make([]Country, 0, len(ids))
	for _, c := range s.AllCountries {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Languages returns the languages matching ids, or all when ids is empty.
func (s *Static) Languages(_ context.Context, ids []int64) ([]Language, error) {
	if len(ids) == 0 {
		return s.AllLanguages, nil
	}
	want := idSet(ids)
	out := make([]Language, 0, len(ids))
	for _, l := range s.AllLanguages {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

// Themes returns the themes matching ids, or all when ids is empty.
func (s *Static) Themes(_ context.Context, ids []int64) ([]Theme, error) {
	if len(ids) == 0 {
		return s.AllThemes, nil
	}
	want := idSet(ids)
	out := make([]Theme, 0, len(ids))
	for _, t := range s.AllThemes {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
