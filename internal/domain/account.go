package domain

// Admin roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Instructor positions double as token roles.
const (
	RoleProfessor = "professor"
	RoleLecturer  = "lecturer"
	RoleAssistant = "assistant"
	RoleStudent   = "student"
)

// PrivilegedRoles is the default elevated role set.
var PrivilegedRoles = []string{RoleAdmin, RoleSuperAdmin}

// LecturerRoles gate the lecturer area.
var LecturerRoles = []string{RoleProfessor, RoleLecturer, RoleAssistant}

// Admin is a back-office operator.
type Admin struct {
	LifecycleModel
	Email        string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255" json:"-"`
	Role         string `gorm:"size:20;not null;default:admin" json:"role"`
	FirstName    string `gorm:"size:100" json:"first_name"`
	LastName     string `gorm:"size:100" json:"last_name"`
}

func (Admin) TableName() string { return "admins" }

// Instructor teaches course offerings. Position is one of LecturerRoles.
type Instructor struct {
	LifecycleModel
	FirstName    string  `gorm:"size:100;not null" json:"first_name"`
	LastName     string  `gorm:"size:100;not null" json:"last_name"`
	Email        string  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PhoneNumber  *string `gorm:"size:20" json:"phone_number"`
	PasswordHash string  `gorm:"size:255" json:"-"`
	Position     *string `gorm:"size:50" json:"position"`
}

func (Instructor) TableName() string { return "instructors" }
