/*
Package adldap is a safe, streaming search client for Microsoft Active
Directory over LDAP.

# Architecture Overview

The package is organized around three tightly coupled subsystems:

  - A filter compiler (filter.go) that turns a structured, tagged
    expression tree into an escaped RFC 2254 filter string.
  - A search driver (search.go) that wraps a paged LDAP search in a
    lazy, backpressured pipeline, normalizing attribute shape and
    reassembling range-limited multi-valued attributes.
  - A schema bootstrap (schema.go) that learns attribute cardinality
    and value decoders from the directory's own attributeSchema, and a
    public façade (handler.go) built on top of it.

# Connection Model

A Handler is constructed once per process and bootstraps its schema map
lazily on first search. Every search acquires its own *ldap.Conn (via
connection.go) unless the caller supplies one; there is no connection
pool, no server federation, and no caching of results across calls.

# Filter DSL

Queries are expressed as a recursively tagged expression, never as a
hand-built filter string, so caller input can never reach the wire
unescaped:

	adldap.And(
		adldap.Equals("objectClass", "user"),
		adldap.BeginsWith("sAMAccountName", "svc-"),
	)

Two virtual attributes, _transitive_member and _transitive_memberOf,
denote in-chain group membership. When client-side transitive search is
in effect for a query, they are expanded into a flat oneof over the real
attribute before the filter is compiled; otherwise they are compiled into
the filter under their own names.

# Example Usage

	h, err := adldap.NewHandler(adldap.Config{
		DomainBaseDN:       "DC=example,DC=com",
		SchemaConfigBaseDN: "CN=Schema,CN=Configuration,DC=example,DC=com",
		URL:                "ldaps://dc01.example.com:636",
		User:               "svc-reader@example.com",
		Password:           password,
		Log:                myLogger,
	})
	if err != nil {
		return err
	}

	entries, err := h.GetObjectsA(ctx, adldap.Query{
		Select: []string{"cn", "member"},
		Where:  adldap.Has("cn"),
	})

# Error Handling

Every error returned by this package is a *Error carrying a Kind (one of
ErrConfig, ErrFilterValidation, ErrSchema, ErrTransport, ErrEntryInvariant,
ErrDecoder), the relevant DN/attribute when known, and the underlying
cause. Nothing is swallowed; the handler does not retry or recover from
any of these beyond the schema-bootstrap throttle described in schema.go.
*/
package adldap
