package auth

import (
	"sort"

	"github.com/cppla/qaforum/forms"
	"github.com/cppla/qaforum/models"
)

// Identity is the request-scoped view of who is calling and what they may do.
// The zero value is an anonymous visitor.
type Identity struct {
	UserID   uint
	Username string
	Admin    bool
	perms    map[string]struct{}
}

// NewIdentity builds an identity from a user whose Permissions association is loaded.
// Admins implicitly hold every permission.
func NewIdentity(u models.User, admin bool) Identity {
	perms := make(map[string]struct{}, len(u.Permissions))
	for _, p := range u.Permissions {
		perms[p.Codename] = struct{}{}
	}
	return Identity{UserID: u.ID, Username: u.Username, Admin: admin, perms: perms}
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (id Identity) Authenticated() bool {
	return id.UserID != 0
}

// Has reports whether the identity holds codename.
func (id Identity) Has(codename string) bool {
	if !id.Authenticated() {
		return false
	}
	if id.Admin {
		return true
	}
	_, ok := id.perms[codename]
	return ok
}

// Permissions returns the granted codenames in sorted order.
func (id Identity) Permissions() []string {
	if id.Admin {
		out := make([]string, 0, len(AllPermissions))
		for _, p := range AllPermissions {
			out = append(out, p.Codename)
		}
		sort.Strings(out)
		return out
	}
	out := make([]string, 0, len(id.perms))
	for p := range id.perms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CanAdd reports whether the identity may create content of kind k.
func (id Identity) CanAdd(k Kind) bool {
	return id.Has(AddPermission(k))
}

// Owns reports whether the identity is the owning user ownerID.
func (id Identity) Owns(ownerID uint) bool {
	return id.Authenticated() && id.UserID == ownerID
}

// EditRole selects the form variant for editing content of kind k owned by ownerID.
// Owners get forms.RoleOwnerEdit even when they also hold the change permission.
// ok is false when the identity may not edit at all.
func (id Identity) EditRole(k Kind, ownerID uint) (role forms.Role, ok bool) {
	switch {
	case id.Owns(ownerID):
		return forms.RoleOwnerEdit, true
	case id.Has(ChangePermission(k)):
		return forms.RolePrivilegedEdit, true
	default:
		return 0, false
	}
}
