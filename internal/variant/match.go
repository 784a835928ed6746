// Package variant selects the page family a URL belongs to and builds the
// handler that annotates it.
package variant

import (
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/hazyhaar/poundlens/internal/config"
)

// ErrNoMatch is returned when no variant activates on a URL.
var ErrNoMatch = errors.New("variant: no variant matches")

// Match returns the first variant whose path glob matches the URL path and
// whose required query key, if any, is present.
func Match(variants []config.VariantConfig, rawURL string) (config.VariantConfig, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return config.VariantConfig{}, fmt.Errorf("variant: parse url: %w", err)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	q := u.Query()
	for _, v := range variants {
		if v.Query != "" && !q.Has(v.Query) {
			continue
		}
		for _, glob := range v.Paths {
			ok, err := path.Match(glob, p)
			if err != nil {
				return config.VariantConfig{}, fmt.Errorf("variant: %s: bad path %q: %w", v.Name, glob, err)
			}
			if ok {
				return v, nil
			}
		}
	}
	return config.VariantConfig{}, fmt.Errorf("%w: %s", ErrNoMatch, u.Path)
}
