package identity

// CompanySet is the resolved read scope of a principal: either the ALL
// sentinel (SYSTEM_ADMIN) or an explicit set of company IDs. The zero value
// is the empty set, which matches nothing (fail closed).
type CompanySet struct {
	All bool
	ids map[string]struct{}
}

// AllCompanies is the universal sentinel matching every company.
func AllCompanies() CompanySet {
	return CompanySet{All: true}
}

// NewCompanySet builds a set from explicit company IDs.
func NewCompanySet(ids ...string) CompanySet {
	s := CompanySet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether the set covers the given company.
func (s CompanySet) Contains(id string) bool {
	if s.All {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IntersectsAny reports whether any of the given company IDs is in the set.
// Fan-out records carry a visible_to_company_ids list; a single overlap
// makes the record visible.
func (s CompanySet) IntersectsAny(ids []string) bool {
	if s.All {
		return len(ids) > 0
	}
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			return true
		}
	}
	return false
}

// Empty reports whether the set matches nothing.
func (s CompanySet) Empty() bool {
	return !s.All && len(s.ids) == 0
}

// IDs returns the explicit members. Nil for the ALL sentinel.
func (s CompanySet) IDs() []string {
	if s.All {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Resolver computes the visibility scope of a principal against the shared
// hierarchy index.
type Resolver struct {
	index *Index
}

// NewResolver creates a resolver reading from the given index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns the set of company IDs whose data the principal may read:
//   - SYSTEM_ADMIN: everything, regardless of company.
//   - COMPANY_ADMIN at C: C, its ancestors and its descendants.
//   - USER at C: C and its ancestors only.
//   - Any non-admin without a company: the empty set.
func (r *Resolver) Resolve(p Principal) CompanySet {
	if p.Role == RoleSystemAdmin {
		return AllCompanies()
	}
	if p.CompanyID == "" {
		return CompanySet{}
	}

	ids := []string{p.CompanyID}
	ids = append(ids, r.index.Ancestors(p.CompanyID)...)
	if p.Role == RoleCompanyAdmin {
		ids = append(ids, r.index.Descendants(p.CompanyID)...)
	}
	return NewCompanySet(ids...)
}
