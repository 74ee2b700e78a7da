package adldap

import (
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// fakeTransport is an in-memory stand-in for *ldap.Conn. Each Search call
// consumes the next queued page regardless of which filter was asked for;
// tests that care about filter shape inspect the recorded requests
// instead of branching fake behavior on them.
type fakeTransport struct {
	mu        sync.Mutex
	pages     []*ldap.SearchResult
	requests  []*ldap.SearchRequest
	searchErr error
	unbound   bool
}

func (f *fakeTransport) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.pages) == 0 {
		return &ldap.SearchResult{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeTransport) Unbind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbound = true
	return nil
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) lastFilter() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1].Filter
}

func (f *fakeTransport) lastAttributes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1].Attributes
}

func fakeConn(pages ...*ldap.SearchResult) (*Conn, *fakeTransport) {
	ft := &fakeTransport{pages: pages}
	return &Conn{t: ft}, ft
}

// onePage wraps entries as a single, non-continuing search page.
func onePage(entries ...*ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries}
}

// pageWithCookie wraps entries as one page of a multi-page search, to be
// followed by another Search call once the driver sees the cookie.
func pageWithCookie(cookie string, entries ...*ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{
		Entries: entries,
		Controls: []ldap.Control{
			&ldap.ControlPaging{Cookie: []byte(cookie)},
		},
	}
}

// strAttr builds a string-valued *ldap.EntryAttribute.
func strAttr(name string, values ...string) *ldap.EntryAttribute {
	return &ldap.EntryAttribute{Name: name, Values: values}
}

// rawAttr builds an *ldap.EntryAttribute carrying both the transport's
// decoded strings and the original bytes, as binary attributes (GUID,
// SID, ...) arrive over the wire.
func rawAttr(name string, values []string, byteValues [][]byte) *ldap.EntryAttribute {
	return &ldap.EntryAttribute{Name: name, Values: values, ByteValues: byteValues}
}

func fakeEntry(dn string, attrs ...*ldap.EntryAttribute) *ldap.Entry {
	return &ldap.Entry{DN: dn, Attributes: attrs}
}

// toLDAPEntries converts the schema-row builders used by the bootstrap
// tests into real *ldap.Entry values.
func toLDAPEntries(rows []*schemaRowEntry) []*ldap.Entry {
	out := make([]*ldap.Entry, len(rows))
	for i, r := range rows {
		attrs := make([]*ldap.EntryAttribute, len(r.attrs))
		for j, a := range r.attrs {
			attrs[j] = strAttr(a.name, a.values...)
		}
		out[i] = &ldap.Entry{DN: r.dn, Attributes: attrs}
	}
	return out
}
