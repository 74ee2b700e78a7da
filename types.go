package adldap

import "regexp"

// attrNameRE matches the 2-60 character attribute-name shape: first a
// lowercase ASCII letter, remainder ASCII letters/digits/hyphen.
var attrNameRE = regexp.MustCompile(`^[a-z][a-zA-Z0-9-]{1,59}$`)

// Virtual attribute names. These are accepted in filters and in Select.
// They are never requested as wire attributes. In a filter, when
// client-side transitive search is in effect for the query, the transitive
// rewriter expands them into a flat oneof over the real attribute before
// compilation; otherwise the compiler emits them under their own names.
const (
	VirtualTransitiveMember   = "_transitive_member"
	VirtualTransitiveMemberOf = "_transitive_memberOf"
)

func isVirtualAttribute(name string) bool {
	return name == VirtualTransitiveMember || name == VirtualTransitiveMemberOf
}

// Scope is an LDAP search scope. The zero value is ScopeSub, matching the
// default a Query with no explicit Scope gets.
type Scope int

const (
	ScopeSub Scope = iota
	ScopeBase
	ScopeOne
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOne:
		return "one"
	case ScopeSub:
		return "sub"
	default:
		return "unknown"
	}
}

// SelectAll is the sentinel Select value meaning "request every attribute".
var SelectAll = []string{"*"}

func isSelectAll(sel []string) bool {
	return len(sel) == 1 && sel[0] == "*"
}

// Query describes a single search. Zero value fields fall back to the
// handler's configured defaults (applied in Handler.GetObjects).
type Query struct {
	// Select names the attributes to return, or SelectAll for "*".
	// A nil slice is equivalent to SelectAll.
	Select []string

	// From is the search base DN. Empty means the handler's domain base DN.
	From string

	// Where is the filter expression. A nil Where means True().
	Where Expr

	// Scope defaults to ScopeSub.
	Scope Scope

	// ClientSideTransitiveSearch overrides the handler's default for
	// whether _transitive_member/_transitive_memberOf are expanded
	// client-side. Nil means "use the handler default".
	ClientSideTransitiveSearch *bool

	// WaitForInitialization defaults to true: the handler bootstraps its
	// schema map before running the search. When false, the search runs
	// against the schema map as it currently is.
	WaitForInitialization *bool

	// Connection, if non-nil, is reused for this search instead of
	// acquiring a new one; the driver will not bind or unbind it.
	Connection *Conn
}

func boolPtr(b bool) *bool { return &b }

func (q Query) waitForInit() bool {
	if q.WaitForInitialization == nil {
		return true
	}
	return *q.WaitForInitialization
}

// Entry is one normalized search result: every key is an attribute the
// caller asked for (or implied via "*") and present in the schema map.
// A single-valued attribute maps to a scalar; a multi-valued attribute
// maps to a (possibly empty) slice, in schema-decoded form.
type Entry map[string]any
