package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressValueDefaultsCountry(t *testing.T) {
	addr := Address{Name: "Asha", Line1: "12 MG Road", City: "Pune", State: "Maharashtra", PostalCode: "411001"}
	v, err := addr.Value()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.Scan(v))
	require.Equal(t, "IN", decoded.Country)
	require.Equal(t, "411001", decoded.PostalCode)
}

func TestAddressValueRequiresLine1(t *testing.T) {
	_, err := Address{PostalCode: "411001"}.Value()
	require.Error(t, err)
}

func TestAddressScanRejectsUnknownType(t *testing.T) {
	var a Address
	require.Error(t, a.Scan(42))
	require.NoError(t, a.Scan(nil))
}
