package identity

import "time"

// Role is the fixed role assigned at registration.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// EnrollmentStatus tracks whether a user has a committed face sample.
type EnrollmentStatus string

const (
	Unenrolled EnrollmentStatus = "unenrolled"
	Enrolled   EnrollmentStatus = "enrolled"
)

// User is a registered account. Role and ClassID never change after creation.
type User struct {
	ID               int64            `db:"id" json:"userId"`
	Account          string           `db:"account" json:"userAccount"`
	PasswordHash     string           `db:"password_hash" json:"-"`
	DisplayName      string           `db:"display_name" json:"userName"`
	Role             Role             `db:"role" json:"userRole"`
	ClassID          *int64           `db:"class_id" json:"classId"`
	ClassName        *string          `db:"class_name" json:"className"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollmentStatus"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// Enrolled reports whether the user has completed a first enrollment.
func (u User) Enrolled() bool {
	return u.EnrollmentStatus == Enrolled
}

// InClass reports whether the user belongs to classID.
func (u User) InClass(classID int64) bool {
	return u.ClassID != nil && *u.ClassID == classID
}

// ClassGroup is a class students belong to and tasks target.
type ClassGroup struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"className"`
	Code string `db:"code" json:"classCode"`
}

// Caller is the verified identity of the requester, established by token
// verification and trusted for the duration of one request.
type Caller struct {
	ID          int64
	Account     string
	DisplayName string
	Role        Role
	ClassID     *int64
}

// InClass reports whether the caller belongs to classID.
func (c Caller) InClass(classID int64) bool {
	return c.ClassID != nil && *c.ClassID == classID
}
