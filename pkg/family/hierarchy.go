package family

import (
	"sort"
	"strings"
)

// GetFamilyHierarchy returns the members ordered by role authority descending,
// then by name (case-insensitive), then by id. The input is not modified.
func GetFamilyHierarchy(members []*FamilyMember) []*FamilyMember {
	sorted := make([]*FamilyMember, 0, len(members))
	for _, m := range members {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Role.Authority() != b.Role.Authority() {
			return a.Role.Authority() > b.Role.Authority()
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	return sorted
}

// GetCurrentUserRole returns the role of the caller's accepted membership.
// The boolean is false when userID is empty or has no accepted membership,
// and callers must treat that as deny-all.
func GetCurrentUserRole(members []*FamilyMember, userID string) (Role, bool) {
	m := FindMemberByUser(members, userID)
	if m == nil {
		return "", false
	}
	return m.Role, true
}

// FindMemberByUser returns the accepted member linked to userID, or nil
func FindMemberByUser(members []*FamilyMember, userID string) *FamilyMember {
	if userID == "" {
		return nil
	}
	for _, m := range members {
		if m != nil && m.UserID == userID && m.IsActive() {
			return m
		}
	}
	return nil
}

// FindMember returns the member with the given id, or nil
func FindMember(members []*FamilyMember, memberID string) *FamilyMember {
	for _, m := range members {
		if m != nil && m.ID == memberID {
			return m
		}
	}
	return nil
}

// CountOwners returns how many members hold the account_owner role
func CountOwners(members []*FamilyMember) int {
	n := 0
	for _, m := range members {
		if m.IsOwner() {
			n++
		}
	}
	return n
}
