package memory

// AccessFilter is the visibility predicate computed by the authorization layer
// for one caller. Stores apply it; ranking code only passes it along.
//
// A record is visible when any of the following holds:
//   - the filter is Unrestricted
//   - the record is personal and owned by UserID
//   - the record is organization-scoped and belongs to one of OrganizationIDs
//   - the record is public and IncludePublic is set
type AccessFilter struct {
	UserID          string
	OrganizationIDs []string
	IncludePublic   bool

	// Unrestricted disables visibility filtering (internal callers only).
	Unrestricted bool
}

// Allows evaluates the filter against a record in memory.
func (a AccessFilter) Allows(r Record) bool {
	if a.Unrestricted {
		return true
	}
	switch r.Visibility {
	case VisibilityPersonal:
		return a.UserID != "" && r.OwnerID == a.UserID
	case VisibilityOrganization:
		for _, org := range a.OrganizationIDs {
			if org != "" && org == r.OrganizationID {
				return true
			}
		}
		return false
	case VisibilityPublic:
		return a.IncludePublic
	default:
		return false
	}
}
