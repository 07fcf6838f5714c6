/*
policy.go - Access policy as a capability table

PURPOSE:
  Decides who may perform which operation. The decision is a pure function
  of (subject, operation, owner of the target) looked up in one table, so
  the whole matrix can be read and tested in one place.

RELATIONS:
  anonymous: no authenticated caller
  owner:     caller is the owner of the target (or the target is the caller)
  other:     authenticated non-admin, not the owner
  admin:     administrator, regardless of ownership

SEE ALSO:
  - service.go: every Service method authorizes before touching the store
*/
package shop

// Subject is the caller of an operation.
type Subject struct {
	UserID  UserID
	IsAdmin bool
}

// Anonymous is the subject for unauthenticated callers.
var Anonymous = Subject{}

// System is the subject used by maintenance jobs.
var System = Subject{IsAdmin: true}

// SubjectOf returns the subject for an authenticated user.
func SubjectOf(u User) Subject {
	return Subject{UserID: u.ID, IsAdmin: u.IsAdmin}
}

// Authenticated reports whether the subject is a known caller.
func (s Subject) Authenticated() bool {
	return s.UserID != 0 || s.IsAdmin
}

// Operation is something a subject may try to do.
type Operation string

const (
	OpViewPurchases  Operation = "view_purchases"
	OpViewRefunds    Operation = "view_refunds"
	OpViewUsers      Operation = "view_users"
	OpCreatePurchase Operation = "create_purchase"
	OpRequestRefund  Operation = "request_refund"
	OpDecideRefund   Operation = "decide_refund"
	OpReadCatalog    Operation = "read_catalog"
	OpWriteCatalog   Operation = "write_catalog"
	OpManageUsers    Operation = "manage_users"
	OpRunMaintenance Operation = "run_maintenance"
)

// Relation is how a subject relates to the owner of a target.
type Relation int

const (
	RelAnonymous Relation = iota
	RelOwner
	RelOther
	RelAdmin
)

func (r Relation) String() string {
	switch r {
	case RelOwner:
		return "owner"
	case RelOther:
		return "other"
	case RelAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

type capability map[Relation]bool

var (
	ownerOrAdmin = capability{RelOwner: true, RelAdmin: true}
	adminOnly    = capability{RelAdmin: true}
	everyone     = capability{RelAnonymous: true, RelOwner: true, RelOther: true, RelAdmin: true}
)

var capabilities = map[Operation]capability{
	OpViewPurchases:  ownerOrAdmin,
	OpViewRefunds:    ownerOrAdmin,
	OpViewUsers:      ownerOrAdmin,
	OpCreatePurchase: ownerOrAdmin,
	OpRequestRefund:  ownerOrAdmin,
	OpDecideRefund:   adminOnly,
	OpReadCatalog:    everyone,
	OpWriteCatalog:   adminOnly,
	OpManageUsers:    adminOnly,
	OpRunMaintenance: adminOnly,
}

// RelationOf classifies the subject against the owner of a target.
// Use owner 0 for targets nobody owns (the catalog).
func RelationOf(s Subject, owner UserID) Relation {
	switch {
	case s.IsAdmin:
		return RelAdmin
	case !s.Authenticated():
		return RelAnonymous
	case owner != 0 && s.UserID == owner:
		return RelOwner
	default:
		return RelOther
	}
}

// Allowed reports whether s may perform op on a target owned by owner.
// Unknown operations are denied.
func Allowed(s Subject, op Operation, owner UserID) bool {
	return capabilities[op][RelationOf(s, owner)]
}

// Authorize is Allowed as an error: ErrUnauthenticated for anonymous
// callers, ErrForbidden for everyone else.
func Authorize(s Subject, op Operation, owner UserID) error {
	if Allowed(s, op, owner) {
		return nil
	}
	if !s.Authenticated() {
		return ErrUnauthenticated
	}
	return ErrForbidden
}

// VisibleOwner is the listing scope for s: nil for admins (everything),
// the subject's own id otherwise.
func VisibleOwner(s Subject) OwnerFilter {
	if s.IsAdmin {
		return OwnerFilter{}
	}
	id := s.UserID
	return OwnerFilter{CustomerID: &id}
}
