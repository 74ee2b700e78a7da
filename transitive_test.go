package adldap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransitiveHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(Config{
		DomainBaseDN:       "DC=example,DC=com",
		SchemaConfigBaseDN: "CN=Schema,CN=Configuration,DC=example,DC=com",
		URL:                "ldap://fake",
		User:               "svc",
		Password:           "pw",
	})
	require.NoError(t, err)
	h.initialized = true
	return h
}

func TestRewriteTransitive_EqualsExpandsToOneOfOverMemberOf(t *testing.T) {
	h := newTransitiveHandler(t)

	// Round 1: groups whose member includes the seed DN -> g1.
	// Round 2: groups whose member includes g1 -> g2.
	// Round 3: groups whose member includes g2 -> none, halt.
	conn, ft := fakeConn(
		onePage(fakeEntry("CN=g1,DC=example,DC=com", strAttr("distinguishedName", "CN=g1,DC=example,DC=com"))),
		onePage(fakeEntry("CN=g2,DC=example,DC=com", strAttr("distinguishedName", "CN=g2,DC=example,DC=com"))),
		onePage(),
	)

	rewritten, err := h.rewriteTransitive(context.Background(), conn,
		Equals(VirtualTransitiveMemberOf, "CN=user,DC=example,DC=com"))
	require.Nil(t, err)

	oneOf, ok := rewritten.(exprOneOf)
	require.True(t, ok)
	assert.Equal(t, "memberOf", oneOf.attr)
	assert.ElementsMatch(t, []string{
		"CN=user,DC=example,DC=com",
		"CN=g1,DC=example,DC=com",
		"CN=g2,DC=example,DC=com",
	}, oneOf.values)
	assert.Equal(t, 3, ft.requestCount())
}

func TestRewriteTransitive_MemberIsSymmetricOverMemberOfEdges(t *testing.T) {
	h := newTransitiveHandler(t)

	conn, _ := fakeConn(
		onePage(fakeEntry("CN=child,DC=example,DC=com", strAttr("distinguishedName", "CN=child,DC=example,DC=com"))),
		onePage(),
	)

	rewritten, err := h.rewriteTransitive(context.Background(), conn,
		Equals(VirtualTransitiveMember, "CN=parent-group,DC=example,DC=com"))
	require.Nil(t, err)

	oneOf, ok := rewritten.(exprOneOf)
	require.True(t, ok)
	assert.Equal(t, "member", oneOf.attr)
	assert.ElementsMatch(t, []string{
		"CN=parent-group,DC=example,DC=com",
		"CN=child,DC=example,DC=com",
	}, oneOf.values)
}

func TestRewriteTransitive_RecursesThroughAndOrNot(t *testing.T) {
	h := newTransitiveHandler(t)
	conn, _ := fakeConn(onePage())

	where := And(
		Has("cn"),
		Not(OneOf(VirtualTransitiveMemberOf, "CN=a,DC=example,DC=com", "CN=b,DC=example,DC=com")),
	)
	rewritten, err := h.rewriteTransitive(context.Background(), conn, where)
	require.Nil(t, err)

	andNode, ok := rewritten.(exprAnd)
	require.True(t, ok)
	require.Len(t, andNode.children, 2)
	_, isHas := andNode.children[0].(exprHas)
	assert.True(t, isHas)
	notNode, ok := andNode.children[1].(exprNot)
	require.True(t, ok)
	_, isOneOf := notNode.child.(exprOneOf)
	assert.True(t, isOneOf)
}

func TestRewriteTransitive_NonVirtualNodesPassThroughUnchanged(t *testing.T) {
	h := newTransitiveHandler(t)
	conn, ft := fakeConn()

	where := Equals("cn", "Alice")
	rewritten, err := h.rewriteTransitive(context.Background(), conn, where)
	require.Nil(t, err)
	assert.Equal(t, where, rewritten)
	assert.Equal(t, 0, ft.requestCount(), "no group search should run for a non-virtual filter")
}

func TestRewriteTransitive_SurfacesShapeErrorsBeforeSearching(t *testing.T) {
	h := newTransitiveHandler(t)
	conn, ft := fakeConn()

	_, err := h.rewriteTransitive(context.Background(), conn, And())
	require.NotNil(t, err)
	assert.Equal(t, ErrFilterValidation, err.Kind)
	assert.Equal(t, 0, ft.requestCount())
}

func TestRewriteTransitive_DoesNotMutateOriginalExpression(t *testing.T) {
	h := newTransitiveHandler(t)
	conn, _ := fakeConn(onePage())

	original := OneOf(VirtualTransitiveMemberOf, "CN=user,DC=example,DC=com")
	originalCopy := original.(exprOneOf)

	_, err := h.rewriteTransitive(context.Background(), conn, original)
	require.Nil(t, err)

	assert.Equal(t, originalCopy, original.(exprOneOf))
}
