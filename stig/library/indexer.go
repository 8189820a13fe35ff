package library

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gridwatch/netpulse/models"
	"github.com/gridwatch/netpulse/stig/xccdf"
)

// CacheFilename is the index cache written at the library root.
const CacheFilename = "stig_library_index.json"

// maxXCCDFBytes bounds one XCCDF read; DISA documents top out well below this.
const maxXCCDFBytes = 64 << 20

// ─────────────────────────────────────────────────────────────────────────────
// Indexer
// ─────────────────────────────────────────────────────────────────────────────

// Stats summarizes one indexing pass.
type Stats struct {
	TotalZips   int    `json:"total_zips"`
	ParsedOK    int    `json:"parsed_ok"`
	ParseErrors int    `json:"parse_errors"`
	TotalRules  int    `json:"total_rules"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// Indexer scans a library folder of STIG ZIPs and maintains the catalog and
// its on-disk cache.
type Indexer struct {
	libraryPath string
	logger      *slog.Logger

	catalog *Catalog
	stats   Stats

	// rules caches extracted rule lists by benchmark ID; populated lazily by
	// Rules since carrying every rule in memory is expensive.
	rules map[string][]models.STIGRule
}

// NewIndexer creates an indexer over libraryPath. Nothing is scanned until
// Load or Scan.
func NewIndexer(libraryPath string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Indexer{
		libraryPath: libraryPath,
		logger:      logger,
		catalog:     NewCatalog(),
		rules:       make(map[string][]models.STIGRule),
	}
}

// Catalog returns the current catalog.
func (ix *Indexer) Catalog() *Catalog { return ix.catalog }

// Stats returns the statistics of the last scan or cache load.
func (ix *Indexer) Stats() Stats { return ix.stats }

// CachePath returns the index cache location.
func (ix *Indexer) CachePath() string {
	return filepath.Join(ix.libraryPath, CacheFilename)
}

// Load populates the catalog from the cache when present, scanning otherwise.
// Pass rescan=true to ignore the cache and rebuild it.
func (ix *Indexer) Load(rescan bool) error {
	if !rescan && ix.loadCache() {
		return nil
	}
	if err := ix.Scan(); err != nil {
		return err
	}
	ix.saveCache()
	return nil
}

// Scan walks the library folder for *.zip, parses each XCCDF, and rebuilds
// the catalog. Individual archive failures are counted, logged, and skipped.
func (ix *Indexer) Scan() error {
	var zips []string
	err := filepath.WalkDir(ix.libraryPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			zips = append(zips, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("library: walk %s: %w", ix.libraryPath, err)
	}
	sort.Strings(zips)

	ix.catalog = NewCatalog()
	ix.rules = make(map[string][]models.STIGRule)
	ix.stats = Stats{TotalZips: len(zips)}

	ix.logger.Info("library: scanning", "zips", len(zips), "path", ix.libraryPath)

	for _, zipPath := range zips {
		entry, rules, err := ix.parseZip(zipPath)
		if err != nil {
			ix.stats.ParseErrors++
			ix.logger.Warn("library: archive skipped",
				"zip", filepath.Base(zipPath), "error", err.Error())
			continue
		}
		ix.catalog.Add(*entry)
		ix.stats.ParsedOK++
		ix.stats.TotalRules += len(rules)
	}

	ix.stats.LastIndexed = time.Now().UTC().Format(time.RFC3339)
	ix.logger.Info("library: scan complete",
		"parsed", ix.stats.ParsedOK,
		"errors", ix.stats.ParseErrors,
		"rules", ix.stats.TotalRules,
	)
	return nil
}

// Rules returns the rule list for a benchmark, parsing its ZIP on demand and
// memoizing the result.
func (ix *Indexer) Rules(benchmarkID string) ([]models.STIGRule, error) {
	if rules, ok := ix.rules[benchmarkID]; ok {
		return rules, nil
	}

	entry, ok := ix.catalog.Get(benchmarkID)
	if !ok {
		return nil, fmt.Errorf("library: unknown benchmark %q", benchmarkID)
	}

	zipPath := filepath.Join(ix.libraryPath, entry.ZipFilename)
	if _, err := os.Stat(zipPath); err != nil {
		// The archive may live in a subdirectory.
		found := ""
		filepath.WalkDir(ix.libraryPath, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() && filepath.Base(path) == entry.ZipFilename {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if found == "" {
			return nil, fmt.Errorf("library: archive %s not found", entry.ZipFilename)
		}
		zipPath = found
	}

	_, rules, err := ix.parseZip(zipPath)
	if err != nil {
		return nil, err
	}
	ix.rules[benchmarkID] = rules
	return rules, nil
}

// DropRuleCache releases the memoized rule lists.
func (ix *Indexer) DropRuleCache() {
	ix.rules = make(map[string][]models.STIGRule)
}

// Summary reports aggregate library statistics.
func (ix *Indexer) Summary() map[string]any {
	stigs, srgs := 0, 0
	platformCounts := make(map[string]int)
	for _, e := range ix.catalog.Entries() {
		if e.Type == models.TypeSRG {
			srgs++
		} else {
			stigs++
		}
		for _, p := range e.Platforms {
			platformCounts[string(p)]++
		}
	}
	return map[string]any{
		"library_path":      ix.libraryPath,
		"total_entries":     ix.catalog.Len(),
		"stigs":             stigs,
		"srgs":              srgs,
		"total_rules":       ix.stats.TotalRules,
		"platforms_covered": platformCounts,
		"last_indexed":      ix.stats.LastIndexed,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ZIP parsing
// ─────────────────────────────────────────────────────────────────────────────

// parseZip locates the XCCDF XML inside one archive and builds the catalog
// entry plus the full rule list.
func (ix *Indexer) parseZip(zipPath string) (*models.STIGEntry, []models.STIGRule, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, nil, fmt.Errorf("library: open %s: %w", filepath.Base(zipPath), err)
	}
	defer zr.Close()

	var xccdfFile *zip.File
	for _, f := range zr.File {
		if isXCCDFName(f.Name) {
			xccdfFile = f
			break
		}
	}
	if xccdfFile == nil {
		return nil, nil, fmt.Errorf("library: no xccdf document in %s", filepath.Base(zipPath))
	}

	rc, err := xccdfFile.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("library: open xccdf in %s: %w", filepath.Base(zipPath), err)
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxXCCDFBytes))
	rc.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("library: read xccdf in %s: %w", filepath.Base(zipPath), err)
	}

	bench, err := xccdf.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("library: %s: %w", filepath.Base(zipPath), err)
	}

	entry := entryFromBenchmark(bench, filepath.Base(zipPath), xccdfFile.Name)
	return entry, bench.Rules, nil
}

// isXCCDFName matches the two naming conventions DISA has used:
// "*xccdf.xml" and "*_STIG_*.xml".
func isXCCDFName(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if !strings.HasSuffix(base, ".xml") {
		return false
	}
	return strings.HasSuffix(base, "xccdf.xml") || strings.Contains(base, "_stig_")
}

func entryFromBenchmark(b *xccdf.Benchmark, zipName, xccdfPath string) *models.STIGEntry {
	entry := &models.STIGEntry{
		BenchmarkID: b.ID,
		Title:       b.Title,
		Version:     b.Version,
		Release:     b.Release,
		ReleaseDate: b.ReleaseDate,
		ZipFilename: zipName,
		XCCDFPath:   xccdfPath,
		Type:        ClassifyType(b.ID, b.Title),
		Status:      b.Status,
		Description: b.Description,
		RulesCount:  len(b.Rules),
		Platforms:   ClassifyPlatforms(b.ID),
		Profiles:    append([]string(nil), b.Profiles...),
	}

	cciSet := make(map[string]struct{})
	for _, r := range b.Rules {
		switch r.Severity {
		case models.SeverityHigh:
			entry.HighCount++
		case models.SeverityLow:
			entry.LowCount++
		default:
			entry.MediumCount++
		}
		for _, cci := range r.CCIs {
			cciSet[cci] = struct{}{}
		}
	}

	// CCIs carry set semantics with canonical sorted order, so consecutive
	// scans of the same library produce structurally equal entries.
	entry.CCIs = make([]string, 0, len(cciSet))
	for cci := range cciSet {
		entry.CCIs = append(entry.CCIs, cci)
	}
	sort.Strings(entry.CCIs)
	if len(entry.CCIs) == 0 {
		entry.CCIs = nil
	}
	return entry
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache
// ─────────────────────────────────────────────────────────────────────────────

type cacheFile struct {
	Version   string             `json:"version"`
	IndexedAt string             `json:"indexed_at,omitempty"`
	Stats     Stats              `json:"stats"`
	Entries   []models.STIGEntry `json:"entries"`
}

// loadCache restores the catalog from the cache file. Returns false when the
// cache is absent or unreadable; the caller then rescans.
func (ix *Indexer) loadCache() bool {
	data, err := os.ReadFile(ix.CachePath())
	if err != nil {
		return false
	}

	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		ix.logger.Warn("library: cache unreadable, rescanning", "error", err.Error())
		return false
	}

	ix.catalog = NewCatalog()
	for _, e := range cache.Entries {
		ix.catalog.Add(e)
	}
	ix.stats = cache.Stats

	ix.logger.Info("library: cache loaded",
		"entries", ix.catalog.Len(), "indexed_at", cache.IndexedAt)
	return true
}

// saveCache writes the catalog to the cache file. Failures are logged only —
// the in-memory catalog is still valid.
func (ix *Indexer) saveCache() {
	cache := cacheFile{
		Version:   "1.0",
		IndexedAt: ix.stats.LastIndexed,
		Stats:     ix.stats,
		Entries:   ix.catalog.Entries(),
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		ix.logger.Warn("library: cache marshal failed", "error", err.Error())
		return
	}
	if err := os.WriteFile(ix.CachePath(), data, 0o644); err != nil {
		ix.logger.Warn("library: cache write failed", "error", err.Error())
		return
	}
	ix.logger.Info("library: cache saved", "path", ix.CachePath())
}
