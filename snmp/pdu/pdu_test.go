package pdu_test

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/snmp/pdu"
)

func vb(oid string, t gosnmp.Asn1BER, v interface{}) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: t, Value: v}
}

func TestUint64Conversions(t *testing.T) {
	cases := []struct {
		name  string
		pdu   gosnmp.SnmpPDU
		want  uint64
		isErr bool
	}{
		{"counter64", vb(".1.2.3", gosnmp.Counter64, uint64(1048576)), 1048576, false},
		{"counter32", vb(".1.2.3", gosnmp.Counter32, uint(42)), 42, false},
		{"gauge", vb(".1.2.3", gosnmp.Gauge32, uint32(7)), 7, false},
		{"int widened", vb(".1.2.3", gosnmp.Integer, 9), 9, false},
		{"negative rejected", vb(".1.2.3", gosnmp.Integer, -1), 0, true},
		{"string rejected", vb(".1.2.3", gosnmp.OctetString, "x"), 0, true},
		{"noSuchObject", vb(".1.2.3", gosnmp.NoSuchObject, nil), 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pdu.Uint64(tc.pdu)
			if tc.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInt64AndFloat64(t *testing.T) {
	v, err := pdu.Int64(vb(".1", gosnmp.Integer, 42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	f, err := pdu.Float64(vb(".1", gosnmp.Gauge32, uint32(85)))
	require.NoError(t, err)
	assert.Equal(t, 85.0, f)

	_, err = pdu.Int64(vb(".1", gosnmp.EndOfMibView, nil))
	assert.Error(t, err)
}

func TestStringStripsTrailingNulls(t *testing.T) {
	s, err := pdu.String(vb(".1", gosnmp.OctetString, []byte("GigabitEthernet0/1\x00\x00")))
	require.NoError(t, err)
	assert.Equal(t, "GigabitEthernet0/1", s)
}

func TestIsDescendant(t *testing.T) {
	root := "1.3.6.1.2.1.2.2.1.2"

	assert.True(t, pdu.IsDescendant(root, "1.3.6.1.2.1.2.2.1.2.1"))
	assert.True(t, pdu.IsDescendant(root, ".1.3.6.1.2.1.2.2.1.2.200"))
	assert.True(t, pdu.IsDescendant(root, root), "a node is inside its own subtree")

	// Sibling column: walk must terminate here.
	assert.False(t, pdu.IsDescendant(root, "1.3.6.1.2.1.2.2.1.3.1"))
	// Same string prefix but different arc.
	assert.False(t, pdu.IsDescendant(root, "1.3.6.1.2.1.2.2.1.20.1"))
}

func TestIndexSuffix(t *testing.T) {
	root := "1.3.6.1.2.1.2.2.1.2"
	assert.Equal(t, "3", pdu.IndexSuffix(root, ".1.3.6.1.2.1.2.2.1.2.3"))
	assert.Equal(t, "", pdu.IndexSuffix(root, "1.3.6.1.2.1.2.2.1.3.3"))
}

func TestIsError(t *testing.T) {
	assert.True(t, pdu.IsError(gosnmp.NoSuchObject))
	assert.True(t, pdu.IsError(gosnmp.NoSuchInstance))
	assert.True(t, pdu.IsError(gosnmp.EndOfMibView))
	assert.True(t, pdu.IsError(gosnmp.Null))
	assert.False(t, pdu.IsError(gosnmp.Counter64))
}
