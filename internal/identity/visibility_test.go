package identity

import (
	"reflect"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	// Acme(root) -> {West, East}; GlobalTech a separate root.
	ix := NewIndex()
	ix.Rebuild([]*Company{
		{ID: "acme", Name: "Acme"},
		{ID: "west", Name: "West", ParentID: "acme"},
		{ID: "east", Name: "East", ParentID: "acme"},
		{ID: "globaltech", Name: "GlobalTech"},
	})
	resolver := NewResolver(ix)

	tests := []struct {
		name      string
		principal Principal
		want      []string
		all       bool
	}{
		{
			name:      "user at west sees west and its ancestors",
			principal: Principal{UserID: "u1", Role: RoleUser, CompanyID: "west"},
			want:      []string{"acme", "west"},
		},
		{
			name:      "company admin at acme sees whole subtree",
			principal: Principal{UserID: "u2", Role: RoleCompanyAdmin, CompanyID: "acme"},
			want:      []string{"acme", "east", "west"},
		},
		{
			name:      "company admin at globaltech sees only itself",
			principal: Principal{UserID: "u3", Role: RoleCompanyAdmin, CompanyID: "globaltech"},
			want:      []string{"globaltech"},
		},
		{
			name:      "company admin at west sees company plus ancestors and descendants",
			principal: Principal{UserID: "u4", Role: RoleCompanyAdmin, CompanyID: "west"},
			want:      []string{"acme", "west"},
		},
		{
			name:      "system admin sees everything",
			principal: Principal{UserID: "u5", Role: RoleSystemAdmin},
			all:       true,
		},
		{
			name:      "system admin with company still sees everything",
			principal: Principal{UserID: "u6", Role: RoleSystemAdmin, CompanyID: "west"},
			all:       true,
		},
		{
			name:      "user without company fails closed",
			principal: Principal{UserID: "u7", Role: RoleUser},
			want:      nil,
		},
		{
			name:      "company admin without company fails closed",
			principal: Principal{UserID: "u8", Role: RoleCompanyAdmin},
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(tt.principal)
			if got.All != tt.all {
				t.Fatalf("Resolve().All = %v, want %v", got.All, tt.all)
			}
			if tt.all {
				return
			}
			if !reflect.DeepEqual(sorted(got.IDs()), sorted(tt.want)) {
				t.Errorf("Resolve() = %v, want %v", sorted(got.IDs()), tt.want)
			}
			if len(tt.want) == 0 && !got.Empty() {
				t.Error("expected empty visibility set")
			}
		})
	}
}

func TestCompanySet(t *testing.T) {
	s := NewCompanySet("a", "b")

	if !s.Contains("a") || s.Contains("c") {
		t.Error("Contains misbehaves")
	}
	if !s.IntersectsAny([]string{"x", "b"}) {
		t.Error("IntersectsAny should match overlap")
	}
	if s.IntersectsAny([]string{"x", "y"}) {
		t.Error("IntersectsAny should not match disjoint list")
	}
	if s.Empty() {
		t.Error("non-empty set reported empty")
	}

	all := AllCompanies()
	if !all.Contains("anything") {
		t.Error("ALL sentinel must contain everything")
	}
	if !all.IntersectsAny([]string{"x"}) {
		t.Error("ALL sentinel must intersect any non-empty list")
	}
	if all.IntersectsAny(nil) {
		t.Error("ALL sentinel must not intersect an empty list")
	}

	var zero CompanySet
	if !zero.Empty() || zero.Contains("a") || zero.IntersectsAny([]string{"a"}) {
		t.Error("zero value must fail closed")
	}
}
