package adldap

import (
	"sync"
	"time"
)

// Config configures a Handler. Every field is validated once, at
// NewHandler time; nothing here changes afterward.
type Config struct {
	// DomainBaseDN is the default search base (Query.From) and must be a
	// well-formed DN.
	DomainBaseDN string

	// SchemaConfigBaseDN is where the schema bootstrap self-search runs.
	SchemaConfigBaseDN string

	// ClientSideTransitiveSearchBaseDN is the base the transitive
	// rewriter's group searches run against. Defaults to DomainBaseDN.
	ClientSideTransitiveSearchBaseDN string

	// ClientSideTransitiveSearchDefault is the Query.ClientSideTransitiveSearch
	// value used when a query doesn't set one explicitly. Defaults to false.
	ClientSideTransitiveSearchDefault bool

	// URL, User, Password are passed straight to the LDAP transport.
	URL      string
	User     string
	Password string

	// Log receives structured events from every operation. A nil Log is
	// replaced with one that discards everything.
	Log Logger

	// OverrideSingleValued presets schema-map cardinality for specific
	// attributes before bootstrap runs. The three bootstrap self-search
	// attributes (lDAPDisplayName, attributeSyntax, isSingleValued) may
	// not appear here.
	OverrideSingleValued map[string]bool
}

// Handler is the public façade: constructed once per process, it
// bootstraps its schema map lazily and exposes the three search APIs
// (GetObjects, GetObjectsA, GetOneObject) that all delegate to the
// driver.
type Handler struct {
	cfg Config
	log Logger

	// dial acquires the connection bootstrap and the driver use. It is
	// always Dial in production; tests override it to hand back a Conn
	// wrapping an in-memory fake transport.
	dial func(url, user, password string) (*Conn, error)

	mu                   sync.Mutex
	initialized          bool
	lastBootstrapAttempt time.Time
	schema               map[string]*attrInfo
}

// NewHandler validates cfg and constructs a Handler. Construction never
// touches the network; schema bootstrap happens lazily on first search.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.DomainBaseDN == "" || !validDN(cfg.DomainBaseDN) {
		return nil, newErr(ErrConfig, "NewHandler", nil).withDN(cfg.DomainBaseDN).withMessage("domainBaseDN is required and must be a well-formed DN")
	}
	if cfg.SchemaConfigBaseDN == "" || !validDN(cfg.SchemaConfigBaseDN) {
		return nil, newErr(ErrConfig, "NewHandler", nil).withDN(cfg.SchemaConfigBaseDN).withMessage("schemaConfigBaseDN is required and must be a well-formed DN")
	}
	if cfg.ClientSideTransitiveSearchBaseDN != "" && !validDN(cfg.ClientSideTransitiveSearchBaseDN) {
		return nil, newErr(ErrConfig, "NewHandler", nil).withDN(cfg.ClientSideTransitiveSearchBaseDN).withMessage("clientSideTransitiveSearchBaseDN must be a well-formed DN")
	}
	if cfg.URL == "" {
		return nil, newErr(ErrConfig, "NewHandler", nil).withMessage("url is required")
	}
	if cfg.User == "" {
		return nil, newErr(ErrConfig, "NewHandler", nil).withMessage("user is required")
	}
	if cfg.Password == "" {
		return nil, newErr(ErrConfig, "NewHandler", nil).withMessage("password is required")
	}
	for name := range cfg.OverrideSingleValued {
		if isBootstrapOnlyAttr(name) {
			return nil, newErr(ErrConfig, "NewHandler", nil).withAttribute(name).
				withMessage("bootstrap-only attribute may not appear in overrideSingleValued")
		}
	}

	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}

	schema := make(map[string]*attrInfo, len(cfg.OverrideSingleValued))
	for name, sv := range cfg.OverrideSingleValued {
		schema[name] = &attrInfo{singleValued: sv, fromOverride: true}
	}

	return &Handler{cfg: cfg, log: log, schema: schema, dial: Dial}, nil
}

func isBootstrapOnlyAttr(name string) bool {
	for _, a := range bootstrapAttrs {
		if a == name {
			return true
		}
	}
	return false
}

func (h *Handler) effectiveTransitive(q Query) bool {
	if q.ClientSideTransitiveSearch != nil {
		return *q.ClientSideTransitiveSearch
	}
	return h.cfg.ClientSideTransitiveSearchDefault
}

func (h *Handler) transitiveBaseDN() string {
	if h.cfg.ClientSideTransitiveSearchBaseDN != "" {
		return h.cfg.ClientSideTransitiveSearchBaseDN
	}
	return h.cfg.DomainBaseDN
}
