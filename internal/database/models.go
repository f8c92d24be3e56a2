package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	FullName     string
	PasswordHash string
	Role         string
	Status       sql.NullString
	DateOfBirth  sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Course struct {
	Id          int
	Name        string
	Description string
	ManagerId   sql.NullInt64
	ManagerName string
}

type Module struct {
	Id          int
	Name        string
	Description string
	ManagerId   sql.NullInt64
	ManagerName string
	ActiveChat  bool
}

// Enrollment is the (module, student) row the chat membership check relies
// on; the pair is unique in the schema.
type Enrollment struct {
	Id          int
	ModuleId    int
	StudentId   int
	StudentName string
	Score       sql.NullFloat64
	Deadline    sql.NullTime
	Feedback    sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ChatMessage struct {
	Id        int
	ModuleId  int
	UserId    int
	Username  string
	Message   string
	CreatedAt time.Time
}

type ModuleFile struct {
	Id         int
	ModuleId   int
	UploadedBy int
	Name       string
	StorageKey string
	UploadedAt time.Time
}

type CreateUserParams struct {
	Username     string
	FullName     string
	PasswordHash string
	Role         string
}

type CreateCourseParams struct {
	Name        string
	Description string
	ManagerId   int
}

type CreateModuleParams struct {
	Name        string
	Description string
	ManagerId   int
	ActiveChat  bool
}

type CreateModuleFileParams struct {
	ModuleId   int
	UploadedBy int
	Name       string
	StorageKey string
}
