package goals

import "strings"

// DefaultLine is shown when no commercial line is requested.
const DefaultLine = "PETMEDICA"

// Line is a commercial line with the slug used as its goal key.
type Line struct {
	Name string `json:"name"`
	Slug string `json:"id"`
}

// Catalogue is the fixed list of national commercial lines that carry goals.
var Catalogue = []Line{
	{Name: "PETMEDICA", Slug: "petmedica"},
	{Name: "AGROVET", Slug: "agrovet"},
	{Name: "PET NUTRISCIENCE", Slug: "pet_nutriscience"},
	{Name: "AVIVET", Slug: "avivet"},
	{Name: "OTROS", Slug: "otros"},
	{Name: "GENVET", Slug: "genvet"},
	{Name: "INTERPET", Slug: "interpet"},
}

// EcommerceSlug keys the e-commerce goal, entered alongside the catalogue lines.
const EcommerceSlug = "ecommerce"

// Slug converts a line name to its goal key.
func Slug(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, l := range Catalogue {
		if l.Name == upper {
			return l.Slug
		}
	}
	return strings.ReplaceAll(strings.ToLower(upper), " ", "_")
}

// NameFromSlug rebuilds a display name from a goal key.
func NameFromSlug(slug string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(slug), "_", " "))
}

// CatalogueNames lists the catalogue line names in catalogue order.
func CatalogueNames() []string {
	out := make([]string, len(Catalogue))
	for i, l := range Catalogue {
		out[i] = l.Name
	}
	return out
}

// AvailableLines merges line names seen in sales with the lines that have stored
// goals. When both are empty the catalogue is returned.
func AvailableLines(fromSales []string, goalSlugs []string) []string {
	seen := make(map[string]struct{})
	for _, name := range fromSales {
		if n := strings.ToUpper(strings.TrimSpace(name)); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, slug := range goalSlugs {
		if n := NameFromSlug(slug); n != "" {
			seen[n] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return CatalogueNames()
	}
	return sortedKeys(seen)
}
