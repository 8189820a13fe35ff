// Package library indexes a filesystem folder of DISA STIG ZIP archives into
// a searchable catalog, cached as stig_library_index.json at the library
// root.
package library

import (
	"sort"
	"strings"

	"github.com/gridwatch/netpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// Catalog holds the indexed benchmark entries with platform lookup. Entries
// are keyed by benchmark ID; adding an entry with an existing ID replaces it.
type Catalog struct {
	entries    map[string]models.STIGEntry
	byPlatform map[models.Platform][]string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries:    make(map[string]models.STIGEntry),
		byPlatform: make(map[models.Platform][]string),
	}
}

// Add inserts or replaces an entry and indexes its platforms.
func (c *Catalog) Add(entry models.STIGEntry) {
	c.entries[entry.BenchmarkID] = entry
	for _, p := range entry.Platforms {
		if !contains(c.byPlatform[p], entry.BenchmarkID) {
			c.byPlatform[p] = append(c.byPlatform[p], entry.BenchmarkID)
		}
	}
}

// Get returns the entry for a benchmark ID, or false.
func (c *Catalog) Get(benchmarkID string) (models.STIGEntry, bool) {
	e, ok := c.entries[benchmarkID]
	return e, ok
}

// Len reports the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns all entries sorted by benchmark ID. The order is canonical
// so that two scans of the same library serialize identically.
func (c *Catalog) Entries() []models.STIGEntry {
	out := make([]models.STIGEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BenchmarkID < out[j].BenchmarkID })
	return out
}

// ByPlatform returns the entries applicable to a platform.
func (c *Catalog) ByPlatform(p models.Platform) []models.STIGEntry {
	ids := c.byPlatform[p]
	out := make([]models.STIGEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BenchmarkID < out[j].BenchmarkID })
	return out
}

// LatestForPlatform returns the newest entry for a platform by release date,
// then release number, then version. False when the platform has none.
func (c *Catalog) LatestForPlatform(p models.Platform) (models.STIGEntry, bool) {
	entries := c.ByPlatform(p)
	if len(entries) == 0 {
		return models.STIGEntry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if newer(e, best) {
			best = e
		}
	}
	return best, true
}

func newer(a, b models.STIGEntry) bool {
	if a.ReleaseDate != b.ReleaseDate {
		return a.ReleaseDate > b.ReleaseDate
	}
	if a.Release != b.Release {
		return a.Release > b.Release
	}
	return a.Version > b.Version
}

// SearchQuery filters catalog entries. Zero values mean no constraint.
type SearchQuery struct {
	Text     string
	Platform models.Platform
	Type     models.STIGType
}

// Search returns the entries matching every constraint of q.
func (c *Catalog) Search(q SearchQuery) []models.STIGEntry {
	text := strings.ToLower(q.Text)

	var out []models.STIGEntry
	for _, e := range c.Entries() {
		if text != "" &&
			!strings.Contains(strings.ToLower(e.Title), text) &&
			!strings.Contains(strings.ToLower(e.BenchmarkID), text) &&
			!strings.Contains(strings.ToLower(e.Description), text) {
			continue
		}
		if q.Platform != "" && !platformIn(e.Platforms, q.Platform) {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Platform classification
// ─────────────────────────────────────────────────────────────────────────────

// platformKeyword maps a benchmark-ID keyword to the platforms it implies.
// The table is ordered most-specific-first and the first matching keyword
// wins, so "juniper_srx" resolves before the broader "juniper".
type platformKeyword struct {
	keyword   string
	platforms []models.Platform
}

var platformKeywords = []platformKeyword{
	{"rhel_9", []models.Platform{models.PlatformRedHat}},
	{"rhel_8", []models.Platform{models.PlatformRedHat}},
	{"rhel_7", []models.Platform{models.PlatformRedHat}},
	{"red_hat", []models.Platform{models.PlatformRedHat}},
	{"almalinux", []models.Platform{models.PlatformLinux, models.PlatformRedHat}},
	{"ubuntu", []models.Platform{models.PlatformLinux}},
	{"oracle_linux", []models.Platform{models.PlatformLinux}},
	{"suse", []models.Platform{models.PlatformLinux}},
	{"amazon_linux", []models.Platform{models.PlatformLinux}},
	{"macos", []models.Platform{models.PlatformMacOS}},
	{"windows", []models.Platform{models.PlatformWindows}},
	{"win_", []models.Platform{models.PlatformWindows}},
	{"microsoft", []models.Platform{models.PlatformWindows}},
	{"cisco_ios-xe", []models.Platform{models.PlatformCiscoIOS}},
	{"cisco_ios-xr", []models.Platform{models.PlatformCiscoIOS}},
	{"cisco_ios", []models.Platform{models.PlatformCiscoIOS}},
	{"cisco_asa", []models.Platform{models.PlatformCiscoIOS}},
	{"cisco_nx-os", []models.Platform{models.PlatformCiscoNXOS}},
	{"cisco_nxos", []models.Platform{models.PlatformCiscoNXOS}},
	{"cisco_aci", []models.Platform{models.PlatformCiscoNXOS}},
	{"arista", []models.Platform{models.PlatformAristaEOS}},
	{"hpe_aruba", []models.Platform{models.PlatformArubaCX}},
	{"aruba_networking", []models.Platform{models.PlatformArubaCX}},
	{"hp_flexfabric", []models.Platform{models.PlatformProCurve}},
	{"juniper_srx", []models.Platform{models.PlatformJuniperSRX}},
	{"juniper", []models.Platform{models.PlatformJunOS}},
	{"paloalto", []models.Platform{models.PlatformPaloAlto}},
	{"palo_alto", []models.Platform{models.PlatformPaloAlto}},
	{"fortigate", []models.Platform{models.PlatformFortinet}},
	{"fortinet", []models.Platform{models.PlatformFortinet}},
	{"f5_big-ip", []models.Platform{models.PlatformF5BigIP}},
	{"big-ip", []models.Platform{models.PlatformF5BigIP}},
	{"vmware_vsphere", []models.Platform{models.PlatformESXi, models.PlatformVCenter}},
	{"vmware_esxi", []models.Platform{models.PlatformESXi}},
	{"vmware_vcenter", []models.Platform{models.PlatformVCenter}},
	{"mellanox", []models.Platform{models.PlatformMellanox}},
	{"pfsense", []models.Platform{models.PlatformPFSense}},
}

// ClassifyPlatforms maps a benchmark ID to its applicable platforms by the
// first matching keyword. Returns nil for unmatched (typically SRG)
// benchmarks.
func ClassifyPlatforms(benchmarkID string) []models.Platform {
	id := strings.ToLower(benchmarkID)
	for _, kw := range platformKeywords {
		if strings.Contains(id, kw.keyword) {
			return append([]models.Platform(nil), kw.platforms...)
		}
	}
	return nil
}

// ClassifyType reports SRG for Security Requirements Guides, STIG otherwise.
func ClassifyType(benchmarkID, title string) models.STIGType {
	id := strings.ToLower(benchmarkID)
	t := strings.ToLower(title)
	if strings.Contains(id, "srg") || strings.Contains(t, "security requirements guide") {
		return models.TypeSRG
	}
	return models.TypeSTIG
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func platformIn(xs []models.Platform, p models.Platform) bool {
	for _, x := range xs {
		if x == p {
			return true
		}
	}
	return false
}
