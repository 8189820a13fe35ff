// Package parser parses syslog frames in both RFC 3164 (BSD) and RFC 5424
// formats, auto-detecting the format from the characters following the PRI
// field.
//
// Parsing never fails: a frame that matches neither grammar degrades to a
// PRI-only extraction (or to defaults when even the PRI is absent), with the
// remainder kept verbatim as the message. Missing fields are nil.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Message is the parsed form of one syslog frame.
type Message struct {
	Facility int // PRI >> 3
	Severity int // PRI & 7
	Version  int // 0 = RFC 3164, >= 1 = RFC 5424

	Timestamp *time.Time
	Hostname  *string
	AppName   *string
	ProcID    *string
	MsgID     *string

	// StructuredData is SD-ID → param name → value. Nil when absent.
	StructuredData map[string]map[string]string

	Message    string
	DeviceType string // "" when undetected
	EventType  string // "" when undetected
	RawMessage string
}

var (
	rfc5424Probe = regexp.MustCompile(`^<\d{1,3}>\d\s`)

	rfc3164Pattern = regexp.MustCompile(
		`^<(\d{1,3})>([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+(.*)$`)
	rfc3164Tag = regexp.MustCompile(`^(\S+?)(?:\[(\d+)\])?:\s*(.*)$`)
	priOnly    = regexp.MustCompile(`^<(\d{1,3})>(.*)$`)

	rfc5424Pattern = regexp.MustCompile(
		`^<(\d{1,3})>(\d+)\s+` + // PRI VERSION
			`(\S+)\s+` + // TIMESTAMP
			`(\S+)\s+` + // HOSTNAME
			`(\S+)\s+` + // APP-NAME
			`(\S+)\s+` + // PROCID
			`(\S+)\s+` + // MSGID
			`(-|\[.*?\](?:\s*\[.*?\])*)\s*` + // STRUCTURED-DATA
			`(.*)$`) // MSG

	sdElement = regexp.MustCompile(`\[(\S+?)(?:\s+(.*?))?\]`)
	sdParam   = regexp.MustCompile(`(\S+?)="([^"]*)"`)
)

// Parse parses raw, auto-detecting the format. A version digit directly after
// the PRI means RFC 5424; everything else is treated as BSD syslog.
func Parse(raw string) Message {
	if rfc5424Probe.MatchString(raw) {
		return parseRFC5424(raw)
	}
	return parseRFC3164(raw)
}

// ParsePriority splits the numeric PRI into facility and severity. Invalid
// input yields the conventional default of user/informational.
func ParsePriority(pri string) (facility, severity int) {
	n, err := strconv.Atoi(pri)
	if err != nil || n < 0 {
		return 1, 6
	}
	return n >> 3, n & 0x07
}

// ─────────────────────────────────────────────────────────────────────────────
// RFC 3164
// ─────────────────────────────────────────────────────────────────────────────

// parseRFC3164 parses "<PRI>Mmm dd hh:mm:ss HOSTNAME TAG[PID]: MSG". The
// timestamp carries no year, so the current year is injected.
func parseRFC3164(raw string) Message {
	if m := rfc3164Pattern.FindStringSubmatch(raw); m != nil {
		facility, severity := ParsePriority(m[1])

		var ts *time.Time
		year := time.Now().Year()
		if t, err := time.ParseInLocation("2006 Jan _2 15:04:05", strconv.Itoa(year)+" "+m[2], time.Local); err == nil {
			ts = &t
		}

		hostname := m[3]
		rest := m[4]

		var appName, procID *string
		message := rest
		if tag := rfc3164Tag.FindStringSubmatch(rest); tag != nil {
			appName = strPtr(tag[1])
			if tag[2] != "" {
				procID = strPtr(tag[2])
			}
			message = tag[3]
		}

		return Message{
			Facility:   facility,
			Severity:   severity,
			Version:    0,
			Timestamp:  ts,
			Hostname:   &hostname,
			AppName:    appName,
			ProcID:     procID,
			Message:    message,
			// Classification sees the tag-intact remainder: Cisco frames
			// carry their %FAC-SEV-MNEMONIC in the tag, which is stripped
			// into AppName above.
			DeviceType: DetectDeviceType(rest, hostname),
			EventType:  DetectEventType(message),
			RawMessage: raw,
		}
	}

	// Fallback: salvage the PRI when present, keep the remainder verbatim.
	facility, severity := 1, 6
	message := raw
	if m := priOnly.FindStringSubmatch(raw); m != nil {
		facility, severity = ParsePriority(m[1])
		message = m[2]
	}
	return Message{
		Facility:   facility,
		Severity:   severity,
		Version:    0,
		Message:    message,
		DeviceType: DetectDeviceType(message, ""),
		EventType:  DetectEventType(message),
		RawMessage: raw,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// RFC 5424
// ─────────────────────────────────────────────────────────────────────────────

// parseRFC5424 parses "<PRI>VERSION TIMESTAMP HOSTNAME APP PROCID MSGID SD MSG".
// "-" is the nilvalue for any field. Falls back to RFC 3164 when the frame
// does not match.
func parseRFC5424(raw string) Message {
	m := rfc5424Pattern.FindStringSubmatch(raw)
	if m == nil {
		return parseRFC3164(raw)
	}

	facility, severity := ParsePriority(m[1])
	version, _ := strconv.Atoi(m[2])

	var ts *time.Time
	if m[3] != "-" {
		if t, err := time.Parse(time.RFC3339Nano, m[3]); err == nil {
			ts = &t
		}
	}

	var sd map[string]map[string]string
	if m[8] != "" && m[8] != "-" {
		sd = ParseStructuredData(m[8])
	}

	hostname := nilValue(m[4])
	message := m[9]

	return Message{
		Facility:       facility,
		Severity:       severity,
		Version:        version,
		Timestamp:      ts,
		Hostname:       hostname,
		AppName:        nilValue(m[5]),
		ProcID:         nilValue(m[6]),
		MsgID:          nilValue(m[7]),
		StructuredData: sd,
		Message:        message,
		DeviceType:     DetectDeviceType(message, strOrEmpty(hostname)),
		EventType:      DetectEventType(message),
		RawMessage:     raw,
	}
}

// ParseStructuredData parses zero or more [SD-ID name="value" ...] elements.
func ParseStructuredData(sd string) map[string]map[string]string {
	result := make(map[string]map[string]string)
	for _, el := range sdElement.FindAllStringSubmatch(sd, -1) {
		params := make(map[string]string)
		for _, p := range sdParam.FindAllStringSubmatch(el[2], -1) {
			params[p[1]] = p[2]
		}
		result[el[1]] = params
	}
	return result
}

// ─────────────────────────────────────────────────────────────────────────────
// Re-encoding
// ─────────────────────────────────────────────────────────────────────────────

// EncodeRFC5424 renders a parsed message back into RFC 5424 wire form, with
// "-" in nilled positions. Structured data params are emitted in sorted key
// order so the output is deterministic.
func EncodeRFC5424(m Message) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(strconv.Itoa(m.Facility<<3 | m.Severity))
	b.WriteString(">")
	b.WriteString(strconv.Itoa(m.Version))
	b.WriteString(" ")

	if m.Timestamp != nil {
		b.WriteString(m.Timestamp.UTC().Format("2006-01-02T15:04:05.999Z07:00"))
	} else {
		b.WriteString("-")
	}
	for _, f := range []*string{m.Hostname, m.AppName, m.ProcID, m.MsgID} {
		b.WriteString(" ")
		if f != nil {
			b.WriteString(*f)
		} else {
			b.WriteString("-")
		}
	}

	b.WriteString(" ")
	if len(m.StructuredData) == 0 {
		b.WriteString("-")
	} else {
		for _, id := range sortedKeys(m.StructuredData) {
			b.WriteString("[")
			b.WriteString(id)
			params := m.StructuredData[id]
			for _, name := range sortedKeys(params) {
				b.WriteString(" ")
				b.WriteString(name)
				b.WriteString(`="`)
				b.WriteString(params[name])
				b.WriteString(`"`)
			}
			b.WriteString("]")
		}
	}

	if m.Message != "" {
		b.WriteString(" ")
		b.WriteString(m.Message)
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func nilValue(s string) *string {
	if s == "-" {
		return nil
	}
	return &s
}

func strPtr(s string) *string { return &s }

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
