package adldap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-objectsid"
	"github.com/google/uuid"
)

// decoderFunc converts one raw attribute value to its typed form. It is a
// pure function of (transport-parsed string, raw bytes): the same input
// always produces the same output, independent of which query produced it.
type decoderFunc func(raw string, rawBytes []byte) (any, error)

// windowsEpochOffsetMS is the number of milliseconds between the Windows
// NT epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
const windowsEpochOffsetMS = 11644473600000

// neverFiletimeSentinel is the value AD uses on accountExpires et al. to
// mean "never expires". Dividing it by 10000 and rebasing to 1970 is
// representable in an int64 without overflow, but formatting it as a real
// calendar date (AD 30828) is meaningless and not what any caller
// wants. We special-case it to a fixed literal instead of silently
// producing a nonsense date - see Open Question (i).
const neverFiletimeSentinel = "9223372036854775807"

func decodeBool(raw string, _ []byte) (any, error) {
	switch raw {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	default:
		return nil, newErr(ErrDecoder, "decodeBool", nil).withRawValue(raw).withMessage("boolean value must be TRUE or FALSE")
	}
}

func decodeInt32(raw string, _ []byte) (any, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return nil, newErr(ErrDecoder, "decodeInt32", err).withRawValue(raw)
	}
	return int32(n), nil
}

func decodeFiletime(raw string, _ []byte) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if raw == neverFiletimeSentinel {
		return "9999-12-31 23:59:59", nil
	}
	ticks, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, newErr(ErrDecoder, "decodeFiletime", err).withRawValue(raw)
	}
	ms := int64(ticks/10000) - windowsEpochOffsetMS
	t := time.UnixMilli(ms).UTC()
	return t.Format("2006-01-02 15:04:05"), nil
}

func decodeGeneralizedTime(raw string, _ []byte) (any, error) {
	if raw == "" {
		return nil, nil
	}
	base := raw
	if i := strings.IndexAny(base, "Z+-."); i >= 0 {
		base = base[:i]
	}
	t, err := time.ParseInLocation("20060102150405", base, time.UTC)
	if err != nil {
		return nil, newErr(ErrDecoder, "decodeGeneralizedTime", err).withRawValue(raw)
	}
	return t.Format("2006-01-02 15:04:05"), nil
}

// decodeGUID expects 16 raw bytes in AD's on-wire mixed-endian layout and
// formats {B3B2B1B0-B5B4-B7B6-B8B9-B10B11B12B13B14B15}. Reordering into
// standard UUID wire order and delegating to uuid.FromBytes/String keeps
// the byte-layout logic in one well-tested place instead of hand-slicing
// hex.
func decodeGUID(_ string, rawBytes []byte) (any, error) {
	if len(rawBytes) != 16 {
		return nil, newErr(ErrDecoder, "decodeGUID", nil).withMessage(fmt.Sprintf("expected 16 bytes, got %d", len(rawBytes)))
	}
	reordered := [16]byte{
		rawBytes[3], rawBytes[2], rawBytes[1], rawBytes[0],
		rawBytes[5], rawBytes[4],
		rawBytes[7], rawBytes[6],
		rawBytes[8], rawBytes[9], rawBytes[10], rawBytes[11],
		rawBytes[12], rawBytes[13], rawBytes[14], rawBytes[15],
	}
	u, err := uuid.FromBytes(reordered[:])
	if err != nil {
		return nil, newErr(ErrDecoder, "decodeGUID", err)
	}
	return "{" + strings.ToUpper(u.String()) + "}", nil
}

// decodeSID validates the AD binary SID shape (revision==1, length ==
// 8+4*subAuthorityCount) before delegating the actual authority/
// sub-authority parsing and string formatting to go-objectsid.
func decodeSID(_ string, rawBytes []byte) (any, error) {
	if len(rawBytes) < 8 {
		return nil, newErr(ErrDecoder, "decodeSID", nil).withMessage("SID too short")
	}
	revision := rawBytes[0]
	subAuthorityCount := int(rawBytes[1])
	if revision != 1 {
		return nil, newErr(ErrDecoder, "decodeSID", nil).withMessage(fmt.Sprintf("unsupported revision %d", revision))
	}
	want := 8 + 4*subAuthorityCount
	if len(rawBytes) != want {
		return nil, newErr(ErrDecoder, "decodeSID", nil).
			withMessage(fmt.Sprintf("length %d does not match sub-authority count %d (want %d)", len(rawBytes), subAuthorityCount, want))
	}
	sid := objectsid.Decode(rawBytes)
	return sid.String(), nil
}

func decodeOctetString(_ string, rawBytes []byte) (any, error) {
	var b strings.Builder
	b.Grow(len(rawBytes)*3)
	for i, c := range rawBytes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String(), nil
}

// Attribute syntax OIDs, per the schema's attributeSyntax values.
const (
	syntaxBoolean          = "2.5.5.8"
	syntaxInteger          = "2.5.5.9"
	syntaxGeneralizedTime  = "2.5.5.11"
	syntaxNTSecDesc        = "2.5.5.15"
	syntaxSID              = "2.5.5.17"
	syntaxOctetString      = "2.5.5.10"
)

// decoderBySyntax maps a schema attributeSyntax OID to its decoder, for
// the OIDs that have one. Syntaxes absent from this table (1, 2, 4, 5, 6,
// 7, 12, 13, 14, 16) pass values through undecoded.
var decoderBySyntax = map[string]decoderFunc{
	syntaxBoolean:         decodeBool,
	syntaxInteger:         decodeInt32,
	syntaxGeneralizedTime: decodeGeneralizedTime,
	syntaxNTSecDesc:       decodeOctetString,
	syntaxSID:             decodeSID,
}

// filetimeOverrideAttrs always get the Windows-NT filetime decoder
// regardless of their schema syntax.
var filetimeOverrideAttrs = map[string]bool{
	"accountExpires":      true,
	"badPasswordTime":     true,
	"lastLogonTimestamp":  true,
}

// sniffOctetStringDecoder applies the GUID-vs-generic-octet-string sniff
// rule for attributes whose syntax is OctetString (2.5.5.10): names
// ending in "GUID" or "Guid" get the GUID decoder, everything else gets
// the generic octet-string decoder.
func sniffOctetStringDecoder(name string) decoderFunc {
	if strings.HasSuffix(name, "GUID") || strings.HasSuffix(name, "Guid") {
		return decodeGUID
	}
	return decodeOctetString
}
