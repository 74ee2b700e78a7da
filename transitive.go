package adldap

import "context"

// rewriteTransitive walks where, replacing every equals/oneof node whose
// attribute is one of the two virtual attributes with a flat oneof over
// the real attribute, expanded via iterated group-membership search. The
// original expression is compiled first (unused) purely to surface shape
// errors before any search is issued, and is never mutated: every node
// visited here is read, never written.
func (h *Handler) rewriteTransitive(ctx context.Context, conn *Conn, where Expr) (Expr, *Error) {
	if _, err := compileFilter(where, h.booleanAttrSet()); err != nil {
		return nil, err.(*Error)
	}
	return h.rewriteNode(ctx, conn, where)
}

func (h *Handler) rewriteNode(ctx context.Context, conn *Conn, e Expr) (Expr, *Error) {
	switch n := e.(type) {
	case exprAnd:
		children, err := h.rewriteChildren(ctx, conn, n.children)
		if err != nil {
			return nil, err
		}
		return exprAnd{children: children}, nil

	case exprOr:
		children, err := h.rewriteChildren(ctx, conn, n.children)
		if err != nil {
			return nil, err
		}
		return exprOr{children: children}, nil

	case exprNot:
		child, err := h.rewriteNode(ctx, conn, n.child)
		if err != nil {
			return nil, err
		}
		return exprNot{child: child}, nil

	case exprEquals:
		if !isVirtualAttribute(n.attr) {
			return n, nil
		}
		dns, err := h.expandVirtual(ctx, conn, n.attr, []string{n.value})
		if err != nil {
			return nil, err
		}
		return OneOf(realAttrFor(n.attr), dns...), nil

	case exprOneOf:
		if !isVirtualAttribute(n.attr) {
			return n, nil
		}
		dns, err := h.expandVirtual(ctx, conn, n.attr, n.values)
		if err != nil {
			return nil, err
		}
		return OneOf(realAttrFor(n.attr), dns...), nil

	default:
		return e, nil
	}
}

func (h *Handler) rewriteChildren(ctx context.Context, conn *Conn, children []Expr) ([]Expr, *Error) {
	out := make([]Expr, len(children))
	for i, c := range children {
		rc, err := h.rewriteNode(ctx, conn, c)
		if err != nil {
			return nil, err
		}
		out[i] = rc
	}
	return out, nil
}

// realAttrFor returns the real, wire attribute a virtual attribute
// expands onto: _transitive_memberOf -> memberOf, _transitive_member ->
// member.
func realAttrFor(virtual string) string {
	if virtual == VirtualTransitiveMemberOf {
		return "memberOf"
	}
	return "member"
}

// frontierAttrFor returns the attribute each BFS iteration filters on.
// _transitive_memberOf walks "member" edges (groups containing the
// frontier); _transitive_member is symmetric and walks "memberOf" edges
// instead, per §4.2.
func frontierAttrFor(virtual string) string {
	if virtual == VirtualTransitiveMemberOf {
		return "member"
	}
	return "memberOf"
}

func (h *Handler) expandVirtual(ctx context.Context, conn *Conn, virtual string, seedDNs []string) ([]string, *Error) {
	return h.expandTransitive(ctx, conn, seedDNs, frontierAttrFor(virtual))
}

// expandTransitive performs the iterated frontier search described in
// §4.2: each round finds groups whose frontierAttr hits any DN in the
// current frontier, adds newly discovered DNs to the accumulated
// (monotonically growing) set, and continues with only the newly
// discovered DNs as the next frontier. It halts when a round discovers
// nothing new, which must happen since the group set is finite.
func (h *Handler) expandTransitive(ctx context.Context, conn *Conn, seedDNs []string, frontierAttr string) ([]string, *Error) {
	accumulated := make(map[string]bool, len(seedDNs))
	frontier := make([]string, 0, len(seedDNs))
	for _, dn := range seedDNs {
		if !accumulated[dn] {
			accumulated[dn] = true
			frontier = append(frontier, dn)
		}
	}

	base := h.transitiveBaseDN()

	for len(frontier) > 0 {
		filterExpr := And(
			Equals("objectClass", "group"),
			Equals("objectCategory", "group"),
			OneOf(frontierAttr, frontier...),
		)
		filterStr, ferr := compileFilter(filterExpr, h.booleanAttrSet())
		if ferr != nil {
			return nil, ferr.(*Error)
		}

		entries, err := pagedSearchAll(conn, base, ScopeSub, filterStr, []string{"distinguishedName"})
		if err != nil {
			return nil, err
		}

		var next []string
		for _, e := range entries {
			dn := e.GetAttributeValue("distinguishedName")
			if dn == "" {
				dn = e.DN
			}
			if !accumulated[dn] {
				accumulated[dn] = true
				next = append(next, dn)
			}
		}
		frontier = next
	}

	out := make([]string, 0, len(accumulated))
	for dn := range accumulated {
		out = append(out, dn)
	}
	return out, nil
}
