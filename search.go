package adldap

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// Backpressure hysteresis band (§5): the producer goroutine withholds
// the next page fetch once the internal queue grows past queuePauseHigh,
// and resumes once a consumer pull has drained it below queueResumeLow.
const (
	queuePauseHigh = 2000
	queueResumeLow = 200
	rangeOverlap   = 10
)

// driver runs one top-level search: compiling its filter, paging through
// the transport, and normalizing each entry against the schema map.
type driver struct {
	h         *Handler
	conn      *Conn
	selectSet map[string]bool // nil means "*"
}

// GetObjects runs query and returns a lazy sequence of normalized
// entries. The connection (owned or caller-supplied), any background
// paging goroutine, and schema bootstrap are all settled before the
// sequence's first yield. The paging goroutine and an owned connection are
// torn down on every exit path, including the consumer abandoning
// iteration early; a caller-supplied connection is left open.
func (h *Handler) GetObjects(ctx context.Context, q Query) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if q.waitForInit() {
			if err := h.ensureInitialized(ctx); err != nil {
				yield(nil, err)
				return
			}
		}

		conn := q.Connection
		ownsConn := conn == nil
		if ownsConn {
			c, err := h.dial(h.cfg.URL, h.cfg.User, h.cfg.Password)
			if err != nil {
				yield(nil, err)
				return
			}
			conn = c
		}
		defer func() {
			if ownsConn {
				conn.Close()
			}
		}()

		where := q.Where
		if where == nil {
			where = True()
		}
		if h.effectiveTransitive(q) {
			rewritten, err := h.rewriteTransitive(ctx, conn, where)
			if err != nil {
				yield(nil, err)
				return
			}
			where = rewritten
		}

		filterStr, err := compileFilter(where, h.booleanAttrSet())
		if err != nil {
			yield(nil, err)
			return
		}

		base := q.From
		if base == "" {
			base = h.cfg.DomainBaseDN
		}
		scope := q.Scope

		selectAll := q.Select == nil || isSelectAll(q.Select)
		var selectSet map[string]bool
		if !selectAll {
			selectSet = make(map[string]bool, len(q.Select))
			for _, a := range q.Select {
				selectSet[a] = true
			}
		}

		d := &driver{h: h, conn: conn, selectSet: selectSet}
		wireAttrs := buildWireAttrs(q.Select, selectAll)

		for raw, rerr := range pagedEntries(conn, base, scope, filterStr, wireAttrs) {
			if rerr != nil {
				yield(nil, rerr)
				return
			}
			entry, nerr := d.normalize(raw, selectAll)
			if nerr != nil {
				yield(nil, nerr)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// GetObjectsA materializes GetObjects into a slice. Bounded memory is
// intentionally given up here; callers that need it should use
// GetObjects directly.
func (h *Handler) GetObjectsA(ctx context.Context, q Query) ([]Entry, error) {
	var out []Entry
	for entry, err := range h.GetObjects(ctx, q) {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetOneObject runs query and asserts exactly one result. Zero or more
// than one result is a failure (see Open Question (iii) in DESIGN.md).
func (h *Handler) GetOneObject(ctx context.Context, q Query) (Entry, error) {
	var found *Entry
	for entry, err := range h.GetObjects(ctx, q) {
		if err != nil {
			return nil, err
		}
		if found != nil {
			return nil, newErr(ErrEntryInvariant, "getOneObject", nil).withMessage("more than one object matched")
		}
		e := entry
		found = &e
	}
	if found == nil {
		return nil, newErr(ErrEntryInvariant, "getOneObject", nil).withMessage("no object matched")
	}
	return *found, nil
}

func buildWireAttrs(sel []string, selectAll bool) []string {
	if selectAll {
		// AD does not return distinguishedName for a bare "*" request;
		// it must be named explicitly even when requesting everything.
		return []string{"*", "distinguishedName"}
	}
	seen := map[string]bool{"distinguishedName": true}
	attrs := []string{"distinguishedName"}
	for _, a := range sel {
		if isVirtualAttribute(a) || seen[a] {
			continue
		}
		seen[a] = true
		attrs = append(attrs, a)
	}
	return attrs
}

// pagedEntries drives a paged LDAP search from a dedicated goroutine into
// a mutex-guarded FIFO, and hands entries to the consumer one at a time.
// The goroutine is the sole producer and the sole holder of the paused
// state, so "at most one resume callback outstanding" (§5) holds
// structurally: there is exactly one place a resume can be signalled
// from and exactly one place it is waited on.
func pagedEntries(conn *Conn, base string, scope Scope, filter string, attrs []string) iter.Seq2[*ldap.Entry, *Error] {
	return func(yield func(*ldap.Entry, *Error) bool) {
		type item struct {
			entry *ldap.Entry
			err   *Error
		}

		var mu sync.Mutex
		cond := sync.NewCond(&mu)
		var queue []item
		done := false
		paused := false
		stop := false
		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			paging := ldap.NewControlPaging(pageSize)
			for {
				mu.Lock()
				for paused && !stop {
					cond.Wait()
				}
				if stop {
					mu.Unlock()
					return
				}
				mu.Unlock()

				req := newSearchRequest(base, scope, filter, attrs, []ldap.Control{paging})
				result, err := conn.t.Search(req)

				mu.Lock()
				if stop {
					mu.Unlock()
					return
				}
				if err != nil {
					queue = append(queue, item{err: newErr(ErrTransport, "search", err).withDN(base)})
					done = true
					cond.Broadcast()
					mu.Unlock()
					return
				}
				if len(result.Referrals) > 0 {
					queue = append(queue, item{err: newErr(ErrTransport, "search", nil).withDN(base).
						withMessage("unhandled referral: " + strings.Join(result.Referrals, ", "))})
					done = true
					cond.Broadcast()
					mu.Unlock()
					return
				}
				for _, e := range result.Entries {
					queue = append(queue, item{entry: e})
				}
				if len(queue) > queuePauseHigh {
					paused = true
				}
				cond.Broadcast()

				ctrl := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
				resp, ok := ctrl.(*ldap.ControlPaging)
				if !ok || len(resp.Cookie) == 0 {
					done = true
					cond.Broadcast()
					mu.Unlock()
					return
				}
				paging.SetCookie(resp.Cookie)
				mu.Unlock()
			}
		}()

		defer func() {
			mu.Lock()
			stop = true
			cond.Broadcast()
			mu.Unlock()
			wg.Wait()
		}()

		for {
			mu.Lock()
			for len(queue) == 0 && !done {
				cond.Wait()
			}
			if len(queue) == 0 && done {
				mu.Unlock()
				return
			}
			it := queue[0]
			queue = queue[1:]
			if paused && len(queue) < queueResumeLow {
				paused = false
				cond.Broadcast()
			}
			mu.Unlock()

			if it.err != nil {
				yield(nil, it.err)
				return
			}
			if !yield(it.entry, nil) {
				return
			}
		}
	}
}

// parseRangeName splits "<attr>;range=<from>-<to>" into its parts.
func parseRangeName(name string) (attr string, to string, ok bool) {
	const marker = ";range="
	i := strings.Index(name, marker)
	if i < 0 {
		return "", "", false
	}
	rest := name[i+len(marker):]
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return "", "", false
	}
	return name[:i], rest[dash+1:], true
}

func reverseStrings(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func reverseByteSlices(s [][]byte) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// completeRange reassembles a ranged multi-valued attribute, following
// up with pagedSearchAll rounds over the same connection until the server
// reports the final chunk. firstValues/firstBytes are the (not yet
// reversed) values from the chunk the original search returned.
func completeRange(conn *Conn, dn, attr string, firstValues []string, firstBytes [][]byte, firstTo string) ([]string, [][]byte, *Error) {
	values := reverseStrings(firstValues)
	byteVals := reverseByteSlices(firstBytes)
	if firstTo == "*" {
		return values, byteVals, nil
	}

	for {
		overlapFrom := len(values) - rangeOverlap
		if overlapFrom < 0 {
			overlapFrom = 0
		}
		wireName := attr + ";range=" + strconv.Itoa(overlapFrom) + "-*"

		filterStr, ferr := compileFilter(Equals("distinguishedName", dn), nil)
		if ferr != nil {
			return nil, nil, ferr.(*Error)
		}
		entries, err := pagedSearchAll(conn, dn, ScopeSub, filterStr, []string{"distinguishedName", wireName})
		if err != nil {
			return nil, nil, err
		}
		if len(entries) != 1 {
			return nil, nil, newErr(ErrTransport, "rangeComplete", nil).withDN(dn).
				withMessage("range completion search did not return exactly one entry")
		}

		var chunk *ldap.EntryAttribute
		to := "*"
		for _, a := range entries[0].Attributes {
			if base, rto, ok := parseRangeName(a.Name); ok && base == attr {
				chunk, to = a, rto
				break
			}
			if a.Name == attr {
				chunk = a
				break
			}
		}
		if chunk == nil {
			return nil, nil, newErr(ErrEntryInvariant, "rangeComplete", nil).withDN(dn).withAttribute(attr).
				withMessage("range-completion entry did not include the ranged attribute")
		}

		chunkValues := reverseStrings(chunk.Values)
		chunkBytes := reverseByteSlices(chunk.ByteValues)

		overlapCount := rangeOverlap
		if overlapCount > len(values) {
			overlapCount = len(values)
		}
		if overlapCount > len(chunkValues) {
			return nil, nil, newErr(ErrEntryInvariant, "rangeComplete", nil).withDN(dn).withAttribute(attr).
				withMessage("range chunk smaller than overlap")
		}
		for i := 0; i < overlapCount; i++ {
			tail := len(values) - overlapCount + i
			if chunkValues[i] != values[tail] || !bytesEqual(chunkBytes[i], byteVals[tail]) {
				return nil, nil, newErr(ErrEntryInvariant, "rangeComplete", nil).withDN(dn).withAttribute(attr).
					withMessage("range overlap mismatch against accumulated list")
			}
		}

		values = append(values, chunkValues[overlapCount:]...)
		byteVals = append(byteVals, chunkBytes[overlapCount:]...)

		if to == "*" {
			return values, byteVals, nil
		}
	}
}

// normalize validates and type-corrects one raw *ldap.Entry against the
// schema map, per the invariants in §3/§4.3.
func (d *driver) normalize(raw *ldap.Entry, selectAll bool) (Entry, *Error) {
	if len(raw.Attributes) == 0 {
		return nil, newErr(ErrEntryInvariant, "normalize", nil).withDN(raw.DN).
			withMessage("unexpected empty entry (insufficient permissions?)")
	}

	out := make(Entry, len(raw.Attributes))

	for _, a := range raw.Attributes {
		if a.Name == "controls" || a.Name == "dn" {
			continue
		}

		attrName := a.Name
		values := a.Values
		byteVals := a.ByteValues

		if base, to, ok := parseRangeName(a.Name); ok {
			rv, rb, err := completeRange(d.conn, raw.DN, base, a.Values, a.ByteValues, to)
			if err != nil {
				return nil, err
			}
			attrName = base
			values = rv
			byteVals = rb
		}

		if attrName != "distinguishedName" && !selectAll && !d.selectSet[attrName] {
			return nil, newErr(ErrEntryInvariant, "normalize", nil).withDN(raw.DN).withAttribute(attrName).
				withMessage("entry contained an attribute that was not selected")
		}

		if attrName == "distinguishedName" && !selectAll && !d.selectSet["distinguishedName"] {
			continue
		}

		info := d.h.schemaInfo(attrName)
		if info == nil {
			return nil, newErr(ErrEntryInvariant, "normalize", nil).withDN(raw.DN).withAttribute(attrName).
				withMessage("no cardinality info for attribute")
		}

		decoded := make([]any, len(values))
		for i, v := range values {
			var rb []byte
			if i < len(byteVals) {
				rb = byteVals[i]
			}
			if info.decoder != nil {
				dv, derr := info.decoder(v, rb)
				if derr != nil {
					if de, ok := derr.(*Error); ok {
						return nil, de.withDN(raw.DN).withAttribute(attrName)
					}
					return nil, newErr(ErrDecoder, "decode", derr).withDN(raw.DN).withAttribute(attrName)
				}
				decoded[i] = dv
			} else {
				decoded[i] = v
			}
		}

		if info.singleValued {
			if len(decoded) != 1 {
				return nil, newErr(ErrEntryInvariant, "normalize", nil).withDN(raw.DN).withAttribute(attrName).
					withMessage("single-valued attribute returned multiple values")
			}
			out[attrName] = decoded[0]
		} else {
			out[attrName] = decoded
		}
	}

	return out, nil
}
