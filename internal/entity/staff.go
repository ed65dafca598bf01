package entity

type StaffRole string

const (
	StaffRoleNurse  StaffRole = "nurse"
	StaffRoleDoctor StaffRole = "doctor"
	StaffRoleAdmin  StaffRole = "admin"
)

// StaffLoginData is what the bearer token middleware stores for a request.
type StaffLoginData struct {
	ID    string
	Email string
	Role  StaffRole
}
