package types

import (
	"time"
)

// Role is the closed set of account roles. No user holds both roles;
// authorization points compare against the variants, never raw strings.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher:
		return true
	}
	return false
}

type User struct {
	Id          int        `json:"id"`
	Username    string     `json:"username"`
	FullName    string     `json:"full_name"`
	Role        Role       `json:"role"`
	Status      string     `json:"status,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Password    string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

type Course struct {
	Id          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ManagerId   int      `json:"manager_id,omitempty"`
	ManagerName string   `json:"manager_name,omitempty"`
	Modules     []Module `json:"modules,omitempty"`
}

type Module struct {
	Id          int          `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ManagerId   int          `json:"manager_id,omitempty"`
	ManagerName string       `json:"manager_name,omitempty"`
	ActiveChat  bool         `json:"active_chat"`
	Enrollments []Enrollment `json:"enrollments,omitempty"`
}

type Enrollment struct {
	Id          int        `json:"id"`
	ModuleId    int        `json:"module_id"`
	StudentId   int        `json:"student_id"`
	StudentName string     `json:"student_name,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

type ChatMessage struct {
	Id        int       `json:"id"`
	ModuleId  int       `json:"module_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ModuleFile struct {
	Id         int       `json:"id"`
	ModuleId   int       `json:"module_id"`
	UploadedBy int       `json:"uploaded_by"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
}
