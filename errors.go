package adldap

import (
	"fmt"
	"strings"
)

// Kind classifies the structured errors this package returns, per the six
// error kinds of the filter/search/schema design.
type Kind string

const (
	ErrConfig           Kind = "config"            // invalid/unknown option, bad DN, forbidden override
	ErrFilterValidation Kind = "filter_validation"  // malformed filter expression node
	ErrSchema           Kind = "schema"             // bootstrap produced inconsistent or missing data
	ErrTransport        Kind = "transport"          // connection/bind failure, non-success status, referral
	ErrEntryInvariant   Kind = "entry_invariant"    // zero-attribute entry, unexpected attribute, cardinality mismatch
	ErrDecoder          Kind = "decoder"            // raw value failed to parse
)

// Error is the single structured error type returned by every exported
// operation in this package. It carries the DN and/or attribute involved
// when the failing operation knows them, plus a human message when one
// was set.
type Error struct {
	Kind      Kind
	Op        string // operation that failed, e.g. "compile", "bootstrap", "rangeComplete"
	DN        string
	Attribute string
	RawValue  string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("adldap: %s failed (%s)", e.Op, e.Kind))
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Attribute != "" {
		parts = append(parts, fmt.Sprintf("attribute=%s", e.Attribute))
	}
	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("dn=%s", e.DN))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Cause }

// newErr builds an *Error with the given kind/operation, optionally
// wrapping a cause. Call sites populate DN/Attribute/RawValue afterward
// when known, e.g. newErr(ErrDecoder, "decodeSID", err).withAttribute("objectSid").
func newErr(kind Kind, op string, cause error) *Error {
	e := &Error{Kind: kind, Op: op, Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

func (e *Error) withMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) withDN(dn string) *Error {
	e.DN = dn
	return e
}

func (e *Error) withAttribute(attr string) *Error {
	e.Attribute = attr
	return e
}

func (e *Error) withRawValue(v string) *Error {
	e.RawValue = v
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
