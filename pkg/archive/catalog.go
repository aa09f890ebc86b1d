package archive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
)

// Mission describes one instrument and where its samples live
type Mission struct {
	Name        string
	Description string
	// Archive names the identity used for this mission's archive
	Archive  string
	Products []string
	// URLTemplate renders the download URL for one sample. Empty means the
	// mission must be configured before it can be fetched.
	URLTemplate string
	// Step is the native spacing of archive samples. When non-zero the
	// client probes Time ± n*Step within the request margin.
	Step time.Duration
	// Available reports whether the archive can hold product at t. Nil
	// means always.
	Available func(product string, t time.Time) bool
}

// stereoBLost is when contact with STEREO-B was lost
var stereoBLost = time.Date(2014, time.October, 1, 0, 0, 0, 0, time.UTC)

var catalog = []Mission{
	{
		Name:        "sdo-aia",
		Description: "SDO/AIA EUV synoptic images",
		Archive:     "jsoc",
		Products:    []string{"0094", "0131", "0171", "0193", "0211", "0304", "0335"},
		URLTemplate: "https://jsoc1.stanford.edu/data/aia/synoptic/{time:2006/01/02}/H{time:1500}/AIA{time:20060102_1504}_{product}.fits",
		Step:        2 * time.Minute,
	},
	{
		Name:        "sdo-hmi",
		Description: "SDO/HMI line-of-sight magnetograms",
		Archive:     "jsoc",
		Products:    []string{"magnetogram"},
		Step:        12 * time.Minute,
	},
	{
		Name:        "soho-eit",
		Description: "SOHO/EIT EUV images",
		Archive:     "vso",
		Products:    []string{"171", "195", "284", "304"},
	},
	{
		Name:        "stereo-euvi",
		Description: "STEREO-A/B SECCHI EUVI images",
		Archive:     "vso",
		Products: []string{
			"a/171", "a/195", "a/284", "a/304",
			"b/171", "b/195", "b/284", "b/304",
		},
		Available: func(product string, t time.Time) bool {
			return !strings.HasPrefix(product, "b/") || t.Before(stereoBLost)
		},
	},
	{
		Name:        "solo",
		Description: "Solar Orbiter EUI/FSI and PHI/FDT",
		Archive:     "soar",
		Products:    []string{"eui-fsi174-image", "eui-fsi304-image", "phi-fdt-blos"},
	},
}

// Names returns the known mission names, sorted
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, m := range catalog {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// All returns every mission with overrides applied, sorted by name
func All(overrides map[string]config.MissionConfig) []Mission {
	var out []Mission
	for _, name := range Names() {
		m, _ := Lookup(name, overrides)
		out = append(out, m)
	}
	return out
}

// Lookup returns the named mission with any configured overrides applied
func Lookup(name string, overrides map[string]config.MissionConfig) (Mission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range catalog {
		if m.Name != name {
			continue
		}
		m.Products = append([]string(nil), m.Products...)
		if o, ok := overrides[name]; ok {
			if len(o.Products) > 0 {
				m.Products = append([]string(nil), o.Products...)
			}
			if o.URLTemplate != "" {
				m.URLTemplate = o.URLTemplate
			}
		}
		return m, nil
	}
	return Mission{}, herrors.New(herrors.ErrorTypeConfig, "unknown mission %q (known: %s)", name, strings.Join(Names(), ", "))
}

// IsAvailable reports whether the archive can hold product at t
func (m Mission) IsAvailable(product string, t time.Time) bool {
	return m.Available == nil || m.Available(product, t)
}

// Validate reports a config error when the mission cannot be fetched as
// configured
func (m Mission) Validate() error {
	if m.URLTemplate == "" {
		return herrors.New(herrors.ErrorTypeConfig,
			"mission %s has no url_template configured; set missions.%s.url_template", m.Name, m.Name)
	}
	return nil
}

// SelectProducts resolves a user selection against the mission's products.
// An empty selection means all of them. Numeric names match regardless of
// zero padding, so "94" selects "0094".
func (m Mission) SelectProducts(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), m.Products...), nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, r := range requested {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		p, ok := m.match(r)
		if !ok {
			return nil, herrors.New(herrors.ErrorTypeConfig, "mission %s has no product %q (available: %s)",
				m.Name, r, strings.Join(m.Products, ", "))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, herrors.New(herrors.ErrorTypeConfig, "no products selected for %s", m.Name)
	}
	return out, nil
}

func (m Mission) match(requested string) (string, bool) {
	for _, p := range m.Products {
		if p == requested || trimZeros(p) == trimZeros(requested) {
			return p, true
		}
	}
	return "", false
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return s
	}
	return t
}

func (m Mission) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Description)
}
