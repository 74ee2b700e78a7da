package adldap

import (
	"github.com/go-ldap/ldap/v3"
)

// transport is the slice of *ldap.Conn this package actually calls. It
// exists so tests can exercise the search driver, schema bootstrap, and
// transitive rewriter against an in-memory fake instead of a live
// directory; *ldap.Conn satisfies it without any adapter code.
type transport interface {
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Unbind() error
}

// Conn is a bound LDAP connection. Callers may obtain one with Dial and
// pass it via Query.Connection to reuse it across searches; the driver
// never binds or unbinds a connection it did not dial itself.
type Conn struct {
	t transport
}

// Dial connects to url and binds as user/password. The caller owns the
// returned Conn and must Close it when done.
func Dial(url, user, password string) (*Conn, error) {
	c, err := ldap.DialURL(url)
	if err != nil {
		return nil, newErr(ErrTransport, "dial", err).withMessage("failed to connect to " + url)
	}
	if err := c.Bind(user, password); err != nil {
		c.Close()
		return nil, newErr(ErrTransport, "bind", err).withMessage("bind failed for " + user)
	}
	return &Conn{t: c}, nil
}

// Close unbinds and releases the underlying socket.
func (c *Conn) Close() {
	if c == nil || c.t == nil {
		return
	}
	_ = c.t.Unbind()
}

// validDN reports whether dn is well-formed, delegating entirely to the
// transport's own DN parser per the external-interfaces contract: the
// only distinguishable failure mode this package surfaces for DN shape
// is "parse failed".
func validDN(dn string) bool {
	_, err := ldap.ParseDN(dn)
	return err == nil
}

// pageSize is the number of entries requested per page of a paged
// search, both for the main streaming driver and for the schema
// bootstrap's self-search.
const pageSize = 1000

func newSearchRequest(baseDN string, scope Scope, filter string, attrs []string, controls []ldap.Control) *ldap.SearchRequest {
	ldapScope := ldap.ScopeWholeSubtree
	switch scope {
	case ScopeBase:
		ldapScope = ldap.ScopeBaseObject
	case ScopeOne:
		ldapScope = ldap.ScopeSingleLevel
	case ScopeSub:
		ldapScope = ldap.ScopeWholeSubtree
	}
	return ldap.NewSearchRequest(
		baseDN,
		ldapScope,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		filter,
		attrs,
		controls,
	)
}

// pagedSearchAll runs a complete paged search and accumulates every entry
// in memory. It is used only by the schema bootstrap self-search, by the
// transitive rewriter's group searches, and by range completion, none of
// which participates in the streaming backpressure contract the main
// search driver implements.
func pagedSearchAll(conn *Conn, baseDN string, scope Scope, filter string, attrs []string) ([]*ldap.Entry, *Error) {
	var all []*ldap.Entry
	paging := ldap.NewControlPaging(pageSize)

	for {
		req := newSearchRequest(baseDN, scope, filter, attrs, []ldap.Control{paging})
		result, err := conn.t.Search(req)
		if err != nil {
			return nil, newErr(ErrTransport, "search", err).withDN(baseDN)
		}
		all = append(all, result.Entries...)

		next := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
		respControl, ok := next.(*ldap.ControlPaging)
		if !ok || len(respControl.Cookie) == 0 {
			break
		}
		paging.SetCookie(respControl.Cookie)
	}
	return all, nil
}
