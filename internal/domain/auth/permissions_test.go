package auth

import "testing"

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}

	for role, perms := range RolePermissions {
		if len(perms) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
		for _, perm := range perms {
			if _, ok := allowed[perm]; !ok {
				t.Fatalf("role %s has unknown permission %s", role, perm)
			}
		}
	}
}

func TestDefaultPermissionsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		if _, ok := seen[perm]; ok {
			t.Fatalf("duplicate permission %s", perm)
		}
		seen[perm] = struct{}{}
	}
}

func TestPermissionBoundaries(t *testing.T) {
	has := func(role, perm string) bool {
		for _, candidate := range RolePermissions[role] {
			if candidate == perm {
				return true
			}
		}
		return false
	}

	// Employees participate in their own appraisals but never open them.
	if has(RoleEmployee, PermAppraisalsWrite) {
		t.Fatal("employee must not hold the write permission")
	}
	if !has(RoleEmployee, PermAppraisalsEvaluate) {
		t.Fatal("employee needs the evaluate route for self assessment")
	}

	for role := range RolePermissions {
		if role == RoleAdmin {
			continue
		}
		if has(role, PermSystemAdmin) {
			t.Fatalf("role %s must not hold %s", role, PermSystemAdmin)
		}
		if has(role, PermAuditRead) {
			t.Fatalf("role %s must not read the audit trail", role)
		}
	}

	for _, role := range []string{RoleEmployee, RoleLead, RoleManager, RoleCEO, RoleAdmin} {
		if !has(role, PermAppraisalsRead) {
			t.Fatalf("role %s cannot read appraisals", role)
		}
	}
}
