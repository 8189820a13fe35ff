// Package pdu converts raw gosnmp varbind values into the native Go types the
// collector works with. SNMP agents return the same logical quantity as any
// of several ASN.1 types depending on vendor and MIB revision, so every
// accessor here widens from whatever arrived on the wire.
package pdu

import (
	"fmt"
	"math"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Error sentinels
// ─────────────────────────────────────────────────────────────────────────────

// IsError reports whether the PDU type signals an SNMP retrieval error rather
// than an actual value. Callers skip these varbinds; the corresponding metric
// field is left unset.
func IsError(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance ||
		t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// TypeString returns the human-readable name for a gosnmp Asn1BER type tag.
// Used in log output only.
func TypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Typed accessors
// ─────────────────────────────────────────────────────────────────────────────

// Int64 extracts a signed integer from a varbind.
func Int64(p gosnmp.SnmpPDU) (int64, error) {
	if IsError(p.Type) {
		return 0, fmt.Errorf("pdu %s: %s", p.Name, TypeString(p.Type))
	}
	switch x := p.Value.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("pdu %s: uint64 value %d overflows int64", p.Name, x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("pdu %s: cannot convert %T to int64", p.Name, p.Value)
	}
}

// Uint64 extracts an unsigned counter from a varbind.
func Uint64(p gosnmp.SnmpPDU) (uint64, error) {
	if IsError(p.Type) {
		return 0, fmt.Errorf("pdu %s: %s", p.Name, TypeString(p.Type))
	}
	switch x := p.Value.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("pdu %s: negative value %d", p.Name, x)
		}
		return uint64(x), nil
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("pdu %s: negative value %d", p.Name, x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("pdu %s: negative value %d", p.Name, x)
		}
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("pdu %s: cannot convert %T to uint64", p.Name, p.Value)
	}
}

// Float64 widens any numeric varbind to float64.
func Float64(p gosnmp.SnmpPDU) (float64, error) {
	if IsError(p.Type) {
		return 0, fmt.Errorf("pdu %s: %s", p.Name, TypeString(p.Type))
	}
	switch x := p.Value.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("pdu %s: cannot convert %T to float64", p.Name, p.Value)
	}
}

// String extracts a display string from an OctetString varbind, stripping the
// trailing null bytes some agents append.
func String(p gosnmp.SnmpPDU) (string, error) {
	if IsError(p.Type) {
		return "", fmt.Errorf("pdu %s: %s", p.Name, TypeString(p.Type))
	}
	switch x := p.Value.(type) {
	case string:
		return strings.TrimRight(x, "\x00"), nil
	case []byte:
		return strings.TrimRight(string(x), "\x00"), nil
	default:
		return fmt.Sprintf("%v", p.Value), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// OID helpers
// ─────────────────────────────────────────────────────────────────────────────

// NormalizeOID strips the leading dot gosnmp puts on response OIDs.
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

// IsDescendant reports whether oid lies inside the subtree rooted at root.
// Both arguments may carry or omit the leading dot. A walk terminates when
// the agent returns the first OID outside the walk root.
func IsDescendant(root, oid string) bool {
	r := NormalizeOID(root)
	o := NormalizeOID(oid)
	if !strings.HasPrefix(o, r) {
		return false
	}
	rest := o[len(r):]
	return rest == "" || rest[0] == '.'
}

// IndexSuffix returns the table index portion of oid below root, e.g. "3" for
// ifDescr.3 under the ifDescr column root. Empty when oid is not below root.
func IndexSuffix(root, oid string) string {
	if !IsDescendant(root, oid) {
		return ""
	}
	rest := NormalizeOID(oid)[len(NormalizeOID(root)):]
	return strings.TrimPrefix(rest, ".")
}
