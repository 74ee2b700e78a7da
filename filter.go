package adldap

import "strings"

// Expr is a filter expression node. The concrete variants mirror the
// tagged-sequence grammar exactly: and/or/not/equals/beginswith/endswith/
// contains/has/oneof/true/false. Arity that Go's type system can enforce
// (not takes exactly one child) is enforced by the constructor signature;
// arity that it cannot (and/or called with zero operands) is checked by
// the compiler, same as every other validation rule.
type Expr interface {
	isExpr()
}

type exprAnd struct{ children []Expr }
type exprOr struct{ children []Expr }
type exprNot struct{ child Expr }
type exprEquals struct{ attr, value string }
type exprBeginsWith struct{ attr, value string }
type exprEndsWith struct{ attr, value string }
type exprContains struct{ attr, value string }
type exprHas struct{ attr string }
type exprOneOf struct {
	attr   string
	values []string
}
type exprTrue struct{}
type exprFalse struct{}

func (exprAnd) isExpr()        {}
func (exprOr) isExpr()         {}
func (exprNot) isExpr()        {}
func (exprEquals) isExpr()     {}
func (exprBeginsWith) isExpr() {}
func (exprEndsWith) isExpr()   {}
func (exprContains) isExpr()   {}
func (exprHas) isExpr()        {}
func (exprOneOf) isExpr()      {}
func (exprTrue) isExpr()       {}
func (exprFalse) isExpr()      {}

// And returns the conjunction of exprs. Zero exprs is a validation error
// at compile time, not at construction time, so that expressions built
// programmatically (e.g. by the transitive rewriter) can be compiled for
// their error behavior just like any other malformed node.
func And(exprs ...Expr) Expr { return exprAnd{children: exprs} }

// Or returns the disjunction of exprs.
func Or(exprs ...Expr) Expr { return exprOr{children: exprs} }

// Not negates e.
func Not(e Expr) Expr { return exprNot{child: e} }

// Equals matches attr == value exactly.
func Equals(attr, value string) Expr { return exprEquals{attr: attr, value: value} }

// BeginsWith matches attr values with the given prefix.
func BeginsWith(attr, value string) Expr { return exprBeginsWith{attr: attr, value: value} }

// EndsWith matches attr values with the given suffix.
func EndsWith(attr, value string) Expr { return exprEndsWith{attr: attr, value: value} }

// Contains matches attr values containing value as a substring.
func Contains(attr, value string) Expr { return exprContains{attr: attr, value: value} }

// Has matches any entry where attr is present.
func Has(attr string) Expr { return exprHas{attr: attr} }

// OneOf matches attr == any of values. An empty values list compiles to
// an unsatisfiable filter.
func OneOf(attr string, values ...string) Expr {
	return exprOneOf{attr: attr, values: values}
}

// True matches every entry that has an objectClass, i.e. every AD object.
func True() Expr { return exprTrue{} }

// False matches nothing.
func False() Expr { return exprFalse{} }

// escapeFilterValue applies the RFC 2254 escape table this package uses:
// '*' '(' ')' '\' and NUL. No other character is transformed, so
// multibyte UTF-8 passes through as-is.
func escapeFilterValue(b *strings.Builder, v string) {
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch c {
		case '*':
			b.WriteString(`\2a`)
		case '(':
			b.WriteString(`\28`)
		case ')':
			b.WriteString(`\29`)
		case '\\':
			b.WriteString(`\5c`)
		case 0:
			b.WriteString(`\00`)
		default:
			b.WriteByte(c)
		}
	}
}

// validAttrName reports whether name is a well-formed real attribute name.
// It never accepts a virtual attribute: has/beginswith/endswith/contains
// have no rewriter case that expands _transitive_member/_transitive_memberOf
// (transitive.go's rewriteNode only handles equals/oneof), so a virtual
// name in one of those positions would otherwise reach the wire verbatim.
func validAttrName(name string) bool {
	return attrNameRE.MatchString(name)
}

// validAttrNameForEqualsLike reports whether name is a well-formed real
// attribute name or one of the two virtual attributes, for the two node
// kinds (equals, oneof) the transitive rewriter actually expands.
func validAttrNameForEqualsLike(name string) bool {
	return isVirtualAttribute(name) || attrNameRE.MatchString(name)
}

func validValue(v string) bool {
	return len(v) >= 1 && len(v) <= 255
}

// compileFilter validates e against boolAttrs and emits its RFC 2254
// wire form. It never recurses proportionally to the size of e: synthesis
// walks an explicit work stack so arbitrarily wide or deep expressions
// (tens of thousands of operands) compile in a single goroutine stack
// frame's worth of real recursion.
func compileFilter(e Expr, boolAttrs map[string]bool) (string, error) {
	var b strings.Builder
	stack := make([]workItem, 0, 64)
	stack = append(stack, workItem{node: e})

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.node == nil {
			b.WriteString(item.lit)
			continue
		}

		switch n := item.node.(type) {
		case exprAnd:
			s, err := compileJunction(n.children, "&", boolAttrs)
			if err != nil {
				return "", err.withMessage(junctionMsg("and", err.Message))
			}
			stack = append(stack, s...)

		case exprOr:
			s, err := compileJunction(n.children, "|", boolAttrs)
			if err != nil {
				return "", err.withMessage(junctionMsg("or", err.Message))
			}
			stack = append(stack, s...)

		case exprNot:
			if n.child == nil {
				return "", newErr(ErrFilterValidation, "compile", nil).withMessage("not: missing subexpression")
			}
			stack = append(stack, workItem{lit: ")"}, workItem{node: n.child}, workItem{lit: "(!"})

		case exprEquals:
			lit, err := compileEquals(n.attr, n.value, boolAttrs)
			if err != nil {
				return "", err
			}
			stack = append(stack, workItem{lit: lit})

		case exprBeginsWith:
			lit, err := compilePattern(n.attr, n.value, boolAttrs, "", "*")
			if err != nil {
				return "", err
			}
			stack = append(stack, workItem{lit: lit})

		case exprEndsWith:
			lit, err := compilePattern(n.attr, n.value, boolAttrs, "*", "")
			if err != nil {
				return "", err
			}
			stack = append(stack, workItem{lit: lit})

		case exprContains:
			lit, err := compilePattern(n.attr, n.value, boolAttrs, "*", "*")
			if err != nil {
				return "", err
			}
			stack = append(stack, workItem{lit: lit})

		case exprHas:
			if !validAttrName(n.attr) {
				return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(n.attr).withMessage("invalid attribute name")
			}
			stack = append(stack, workItem{lit: "(" + n.attr + "=*)"})

		case exprOneOf:
			if !validAttrNameForEqualsLike(n.attr) {
				return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(n.attr).withMessage("invalid attribute name")
			}
			if len(n.values) == 0 {
				stack = append(stack, workItem{lit: "(!(objectClass=*))"})
				continue
			}
			children := make([]Expr, len(n.values))
			for i, v := range n.values {
				children[i] = exprEquals{attr: n.attr, value: v}
			}
			s, err := compileJunction(children, "|", boolAttrs)
			if err != nil {
				return "", err.withMessage(junctionMsg("oneof", err.Message))
			}
			stack = append(stack, s...)

		case exprTrue:
			stack = append(stack, workItem{lit: "(objectClass=*)"})

		case exprFalse:
			stack = append(stack, workItem{lit: "(!(objectClass=*))"})

		default:
			return "", newErr(ErrFilterValidation, "compile", nil).withMessage("unknown filter node")
		}
	}

	return b.String(), nil
}

type workItem struct {
	lit  string
	node Expr
}

func junctionMsg(tag, inner string) string { return tag + ": " + inner }

// compileJunction validates an and/or child list and returns the work
// items needed to emit it: a bare passthrough of the single child when
// len==1 (collapsing the enclosing group per the synthesis rule), or a
// wrapped, concatenated group for len>=2. Items are returned in stack
// (reverse emission) order.
func compileJunction(children []Expr, op string, boolAttrs map[string]bool) ([]workItem, *Error) {
	if len(children) == 0 {
		return nil, newErr(ErrFilterValidation, "compile", nil).withMessage("requires at least one operand")
	}
	if len(children) == 1 {
		return []workItem{{node: children[0]}}, nil
	}
	items := make([]workItem, 0, len(children)+2)
	items = append(items, workItem{lit: ")"})
	for i := len(children) - 1; i >= 0; i-- {
		items = append(items, workItem{node: children[i]})
	}
	items = append(items, workItem{lit: "(" + op})
	return items, nil
}

func compileEquals(attr, value string, boolAttrs map[string]bool) (string, *Error) {
	if !validAttrNameForEqualsLike(attr) {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withMessage("invalid attribute name")
	}
	if !validValue(value) {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withRawValue(value).withMessage("value length out of range")
	}
	if boolAttrs[attr] && value != "TRUE" && value != "FALSE" {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withRawValue(value).
			withMessage("boolean attribute requires exactly TRUE or FALSE")
	}
	var b strings.Builder
	b.Grow(len(attr) + len(value) + 8)
	b.WriteByte('(')
	b.WriteString(attr)
	b.WriteByte('=')
	escapeFilterValue(&b, value)
	b.WriteByte(')')
	return b.String(), nil
}

func compilePattern(attr, value string, boolAttrs map[string]bool, prefix, suffix string) (string, *Error) {
	if !validAttrName(attr) {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withMessage("invalid attribute name")
	}
	if !validValue(value) {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withRawValue(value).withMessage("value length out of range")
	}
	if boolAttrs[attr] {
		return "", newErr(ErrFilterValidation, "compile", nil).withAttribute(attr).withMessage("boolean attribute not allowed in pattern match")
	}
	var b strings.Builder
	b.Grow(len(attr) + len(value) + len(prefix) + len(suffix) + 4)
	b.WriteByte('(')
	b.WriteString(attr)
	b.WriteByte('=')
	b.WriteString(prefix)
	escapeFilterValue(&b, value)
	b.WriteString(suffix)
	b.WriteByte(')')
	return b.String(), nil
}
