package adldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBool(t *testing.T) {
	v, err := decodeBool("TRUE", nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = decodeBool("FALSE", nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = decodeBool("maybe", nil)
	require.Error(t, err)
}

func TestDecodeInt32(t *testing.T) {
	v, err := decodeInt32("42", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	v, err = decodeInt32("", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = decodeInt32("not-a-number", nil)
	require.Error(t, err)
}

func TestDecodeFiletime_Epoch(t *testing.T) {
	// 116444736000000000 is the filetime for 1970-01-01T00:00:00Z.
	v, err := decodeFiletime("116444736000000000", nil)
	require.NoError(t, err)
	assert.Equal(t, "1970-01-01 00:00:00", v)
}

func TestDecodeFiletime_NeverSentinel(t *testing.T) {
	v, err := decodeFiletime(neverFiletimeSentinel, nil)
	require.NoError(t, err)
	assert.Equal(t, "9999-12-31 23:59:59", v)
}

func TestDecodeFiletime_Empty(t *testing.T) {
	v, err := decodeFiletime("", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecodeFiletime_Invalid(t *testing.T) {
	_, err := decodeFiletime("not-a-tick-count", nil)
	require.Error(t, err)
}

func TestDecodeGeneralizedTime(t *testing.T) {
	v, err := decodeGeneralizedTime("20240115103000Z", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 10:30:00", v)
}

func TestDecodeGeneralizedTime_FractionalSeconds(t *testing.T) {
	v, err := decodeGeneralizedTime("20240115103000.123Z", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 10:30:00", v)
}

func TestDecodeGeneralizedTime_Offset(t *testing.T) {
	v, err := decodeGeneralizedTime("20240115103000-0500", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 10:30:00", v)
}

func TestDecodeGeneralizedTime_Empty(t *testing.T) {
	v, err := decodeGeneralizedTime("", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecodeGeneralizedTime_Invalid(t *testing.T) {
	_, err := decodeGeneralizedTime("garbage", nil)
	require.Error(t, err)
}

func TestDecodeGUID(t *testing.T) {
	raw := []byte{0x03, 0x02, 0x01, 0x00, 0x05, 0x04, 0x07, 0x06, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	v, err := decodeGUID("", raw)
	require.NoError(t, err)
	assert.Equal(t, "{00010203-0405-0607-0809-0A0B0C0D0E0F}", v)
}

func TestDecodeGUID_WrongLength(t *testing.T) {
	_, err := decodeGUID("", []byte{1, 2, 3})
	assertKind(t, err, ErrDecoder)
}

func TestDecodeSID(t *testing.T) {
	// S-1-5-32-544 (BUILTIN\Administrators): revision 1, 2 sub-authorities,
	// authority 5, sub-authorities 32 and 544, each little-endian.
	raw := []byte{
		0x01, 0x02,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x20, 0x00, 0x00, 0x00,
		0x20, 0x02, 0x00, 0x00,
	}
	v, err := decodeSID("", raw)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-32-544", v)
}

func TestDecodeSID_TooShort(t *testing.T) {
	_, err := decodeSID("", []byte{1, 2, 3})
	assertKind(t, err, ErrDecoder)
}

func TestDecodeSID_WrongRevision(t *testing.T) {
	raw := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05}
	_, err := decodeSID("", raw)
	assertKind(t, err, ErrDecoder)
}

func TestDecodeSID_LengthMismatch(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05, 0x20, 0x00, 0x00, 0x00}
	_, err := decodeSID("", raw)
	assertKind(t, err, ErrDecoder)
}

func TestDecodeOctetString(t *testing.T) {
	v, err := decodeOctetString("", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	assert.Equal(t, "DE AD BE EF", v)
}

func TestSniffOctetStringDecoder(t *testing.T) {
	guidBytes := []byte{0x03, 0x02, 0x01, 0x00, 0x05, 0x04, 0x07, 0x06, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}

	v, err := sniffOctetStringDecoder("objectGUID")("", guidBytes)
	require.NoError(t, err)
	assert.Equal(t, "{00010203-0405-0607-0809-0A0B0C0D0E0F}", v)

	v, err = sniffOctetStringDecoder("schemaIDGuid")("", guidBytes)
	require.NoError(t, err)
	assert.Equal(t, "{00010203-0405-0607-0809-0A0B0C0D0E0F}", v)

	v, err = sniffOctetStringDecoder("someOtherOctetAttr")("", []byte{0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, "DE AD", v)
}
