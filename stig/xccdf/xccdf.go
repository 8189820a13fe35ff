// Package xccdf parses DISA benchmark documents in the Extensible
// Configuration Checklist Description Format — the XML payload inside every
// STIG ZIP. Only the fields the indexer and the evaluator consume are
// extracted; the rest of the (large) schema is ignored.
package xccdf

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gridwatch/netpulse/models"
)

// Benchmark is the parsed form of one XCCDF document.
type Benchmark struct {
	ID          string
	Title       string
	Description string
	Version     string
	Status      string
	StatusDate  string // YYYY-MM-DD as carried in the document

	// Release and ReleaseDate come from the plain-text release-info element,
	// e.g. "Release: 6 Benchmark Date: 26 Jan 2024".
	Release     int
	ReleaseDate string // YYYY-MM-DD, empty when unparseable

	Profiles []string
	Rules    []models.STIGRule
}

// ─────────────────────────────────────────────────────────────────────────────
// XML shapes
// ─────────────────────────────────────────────────────────────────────────────

type xmlBenchmark struct {
	ID          string       `xml:"id,attr"`
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	Status      xmlStatus    `xml:"status"`
	Version     string       `xml:"version"`
	PlainTexts  []xmlPlain   `xml:"plain-text"`
	Profiles    []xmlProfile `xml:"Profile"`
	Groups      []xmlGroup   `xml:"Group"`
}

type xmlStatus struct {
	Date  string `xml:"date,attr"`
	Value string `xml:",chardata"`
}

type xmlPlain struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type xmlProfile struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

type xmlGroup struct {
	ID    string    `xml:"id,attr"` // V-######
	Rules []xmlRule `xml:"Rule"`
}

type xmlRule struct {
	ID       string     `xml:"id,attr"` // SV-…_rule
	Severity string     `xml:"severity,attr"`
	Title    string     `xml:"title"`
	Idents   []xmlIdent `xml:"ident"`
	Fixtext  []string   `xml:"fixtext"`
	Checks   []xmlCheck `xml:"check"`
}

type xmlIdent struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmlCheck struct {
	Content string `xml:"check-content"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing
// ─────────────────────────────────────────────────────────────────────────────

var (
	releaseRe = regexp.MustCompile(`Release:\s*(\d+)`)
	dateRe    = regexp.MustCompile(`Benchmark Date:\s*(\d{1,2})\s+([A-Za-z]{3})\w*\s+(\d{4})`)

	monthNum = map[string]string{
		"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
		"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
		"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
	}
)

// Parse decodes one XCCDF document. Malformed rule entries degrade to partial
// rules rather than failing the whole document.
func Parse(data []byte) (*Benchmark, error) {
	var doc xmlBenchmark
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("xccdf: unmarshal: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("xccdf: document has no benchmark id")
	}

	b := &Benchmark{
		ID:          doc.ID,
		Title:       strings.TrimSpace(doc.Title),
		Description: strings.TrimSpace(doc.Description),
		Version:     strings.TrimSpace(doc.Version),
		Status:      strings.TrimSpace(doc.Status.Value),
		StatusDate:  doc.Status.Date,
	}

	for _, p := range doc.PlainTexts {
		if p.ID != "release-info" {
			continue
		}
		if m := releaseRe.FindStringSubmatch(p.Value); m != nil {
			b.Release, _ = strconv.Atoi(m[1])
		}
		if m := dateRe.FindStringSubmatch(p.Value); m != nil {
			if num, ok := monthNum[m[2]]; ok {
				day := m[1]
				if len(day) == 1 {
					day = "0" + day
				}
				b.ReleaseDate = fmt.Sprintf("%s-%s-%s", m[3], num, day)
			}
		}
	}

	for _, p := range doc.Profiles {
		name := p.ID
		if name == "" {
			name = p.Title
		}
		if name != "" {
			b.Profiles = append(b.Profiles, name)
		}
	}

	for _, g := range doc.Groups {
		for _, r := range g.Rules {
			rule := models.STIGRule{
				VulnID:   g.ID,
				RuleID:   r.ID,
				Title:    strings.TrimSpace(r.Title),
				Severity: normalizeSeverity(r.Severity),
				CCIs:     extractCCIs(r.Idents),
			}
			if len(r.Checks) > 0 {
				rule.CheckText = strings.TrimSpace(r.Checks[0].Content)
			}
			if len(r.Fixtext) > 0 {
				rule.FixText = strings.TrimSpace(r.Fixtext[0])
			}
			b.Rules = append(b.Rules, rule)
		}
	}

	return b, nil
}

func normalizeSeverity(s string) models.STIGSeverity {
	switch strings.ToLower(s) {
	case "high":
		return models.SeverityHigh
	case "low":
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

func extractCCIs(idents []xmlIdent) []string {
	var ccis []string
	for _, id := range idents {
		v := strings.TrimSpace(id.Value)
		if strings.HasPrefix(v, "CCI-") {
			ccis = append(ccis, v)
		}
	}
	sort.Strings(ccis)
	return ccis
}
