package identity

// SubjectPolicy decides whether a caller may act on a recognized or claimed
// subject.
type SubjectPolicy func(caller Caller, subjectID int64) bool

var subjectPolicies = map[Role]SubjectPolicy{
	RoleStudent: selfOnly,
	RoleTeacher: anySubject,
}

func selfOnly(caller Caller, subjectID int64) bool { return caller.ID == subjectID }

func anySubject(Caller, int64) bool { return true }

// IsAuthorizedSubject is the single authorization predicate shared by check-in
// and enrollment. Students may only act on themselves; teachers on anyone.
// Unknown roles are never authorized.
func IsAuthorizedSubject(caller Caller, subjectID int64) bool {
	policy, ok := subjectPolicies[caller.Role]
	if !ok {
		return false
	}
	return policy(caller, subjectID)
}
