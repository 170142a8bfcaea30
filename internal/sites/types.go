package sites

import "time"

// Site is a named observing location.
type Site struct {
	Slug      string  `json:"slug"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Catalog is a complete set of sites loaded from a source.
type Catalog struct {
	Source   string
	LoadedAt time.Time
	Sites    []Site
}

// Find returns the site with the given slug, or false if absent.
func (c *Catalog) Find(slug string) (Site, bool) {
	for _, s := range c.Sites {
		if s.Slug == slug {
			return s, true
		}
	}
	return Site{}, false
}
