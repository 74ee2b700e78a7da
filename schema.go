package adldap

import (
	"context"
	"time"
)

// attrInfo is one schema map entry: everything the normalizer needs to
// know about an attribute, learned once at bootstrap and never removed.
type attrInfo struct {
	singleValued bool
	decoder      decoderFunc
	isBoolean    bool
	fromOverride bool // true if this entry came from Config.OverrideSingleValued
}

// bootstrapThrottle is the minimum interval between schema bootstrap
// attempts (§4.4): at most one concurrent attempt, at most one attempt
// per window. Calls inside the window return immediately with whatever
// state the handler currently has.
const bootstrapThrottle = 10 * time.Second

// bootstrapAttrs are requested on the schema self-search and are always
// treated as single-valued scalars regardless of what schema says about
// them, since they describe the schema search's own rows.
var bootstrapAttrs = []string{"lDAPDisplayName", "attributeSyntax", "isSingleValued"}

// ensureInitialized bootstraps the schema map if it has not succeeded
// yet, subject to the single-flight throttle. It is a no-op once
// initialization has succeeded.
func (h *Handler) ensureInitialized(ctx context.Context) *Error {
	h.mu.Lock()
	if h.initialized {
		h.mu.Unlock()
		return nil
	}
	if !h.lastBootstrapAttempt.IsZero() && time.Since(h.lastBootstrapAttempt) < bootstrapThrottle {
		h.mu.Unlock()
		return nil
	}
	h.lastBootstrapAttempt = time.Now()
	h.mu.Unlock()

	return h.bootstrap(ctx)
}

func (h *Handler) bootstrap(ctx context.Context) *Error {
	return logErrOperation(ctx, h.log, "schemaBootstrap", nil, func() *Error {
		conn, err := h.dial(h.cfg.URL, h.cfg.User, h.cfg.Password)
		if err != nil {
			return err.(*Error)
		}
		defer conn.Close()

		filterStr, ferr := compileFilter(Equals("objectClass", "attributeSchema"), nil)
		if ferr != nil {
			return ferr.(*Error)
		}

		entries, serr := pagedSearchAll(conn, h.cfg.SchemaConfigBaseDN, ScopeSub, filterStr, bootstrapAttrs)
		if serr != nil {
			return serr
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, e := range entries {
			name := e.GetAttributeValue("lDAPDisplayName")
			if name == "" {
				continue
			}
			syntax := e.GetAttributeValue("attributeSyntax")
			singleValued, sverr := parseBootstrapBool(e.GetAttributeValue("isSingleValued"))
			if sverr != nil {
				return newErr(ErrSchema, "bootstrap", sverr).withAttribute(name)
			}

			existing, had := h.schema[name]
			if had {
				if !existing.fromOverride && existing.singleValued != singleValued {
					return newErr(ErrSchema, "bootstrap", nil).withAttribute(name).
						withMessage("conflicting singleValued values across duplicate schema rows")
				}
				if existing.fromOverride {
					// Deliberate override: keep the caller's value, but
					// still assign syntax-driven decoder/boolean info.
					singleValued = existing.singleValued
				}
			}

			info := &attrInfo{singleValued: singleValued, fromOverride: had && existing.fromOverride}

			if filetimeOverrideAttrs[name] {
				info.decoder = decodeFiletime
			} else if syntax == syntaxBoolean {
				info.isBoolean = true
				info.decoder = decodeBool
			} else if d, ok := decoderBySyntax[syntax]; ok {
				info.decoder = d
			} else if syntax == syntaxOctetString {
				info.decoder = sniffOctetStringDecoder(name)
			} else {
				h.log.Warn(ctx, "attribute has no known decoder", map[string]any{"attribute": name, "syntax": syntax})
			}

			h.schema[name] = info
		}

		if err := assertBootstrapInvariants(h.schema); err != nil {
			return err
		}

		h.initialized = true
		return nil
	})
}

// parseBootstrapBool accepts the literal wire form (TRUE/FALSE) and the
// lowercase spelling of a decoded boolean (true/false). Bootstrap reads
// isSingleValued as a raw string, so no decoder runs on it first; any
// other value is an error.
func parseBootstrapBool(raw string) (bool, error) {
	switch raw {
	case "TRUE", "true":
		return true, nil
	case "FALSE", "false":
		return false, nil
	default:
		v, err := decodeBool(raw, nil)
		if err != nil {
			return false, err
		}
		return v.(bool), nil
	}
}

// assertBootstrapInvariants checks the two sanity assertions §4.4 names:
// member must end up multi-valued, and none of the listed structural
// attributes may be classified as boolean. A missing member entry gets
// its own clearer error per Open Question (ii).
func assertBootstrapInvariants(schema map[string]*attrInfo) *Error {
	member, ok := schema["member"]
	if !ok {
		return newErr(ErrSchema, "bootstrap", nil).withAttribute("member").
			withMessage("member attribute not found in schema; check schemaConfigBaseDN")
	}
	if member.singleValued {
		return newErr(ErrSchema, "bootstrap", nil).withAttribute("member").
			withMessage("member must be multi-valued")
	}
	for _, name := range []string{"attributeSyntax", "distinguishedName", "lDAPDisplayName", "member", "objectClass"} {
		if info, ok := schema[name]; ok && info.isBoolean {
			return newErr(ErrSchema, "bootstrap", nil).withAttribute(name).
				withMessage("attribute unexpectedly classified as boolean")
		}
	}
	return nil
}

// schemaInfo returns the schema map entry for name, or nil if bootstrap
// never saw it.
func (h *Handler) schemaInfo(name string) *attrInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.schema[name]
}

// booleanAttrSet snapshots the current set of boolean attribute names
// for the filter compiler.
func (h *Handler) booleanAttrSet() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.schema))
	for name, info := range h.schema {
		if info.isBoolean {
			out[name] = true
		}
	}
	return out
}

// logErrOperation is logOperation adapted to the *Error-returning style
// every internal operation in this package uses.
func logErrOperation(ctx context.Context, log Logger, op string, fields map[string]any, fn func() *Error) *Error {
	var outerErr *Error
	_ = logOperation(ctx, log, op, fields, func() error {
		outerErr = fn()
		if outerErr != nil {
			return outerErr
		}
		return nil
	})
	return outerErr
}
