package database

import "time"

type Repository interface {
	Ping() error

	CreateUser(params CreateUserParams) (User, error)
	GetUserById(id int) (User, error)
	GetUserByUsername(username string) (User, error)
	UpdateUserStatus(userId int, status string) (User, error)
	SearchStudents(query string) ([]User, error)

	CreateCourse(params CreateCourseParams) (Course, error)
	GetCourse(id int) (Course, error)
	ListCoursesByManager(managerId int) ([]Course, error)
	AddModuleToCourse(courseId, moduleId int) error
	ListCourseModules(courseId int) ([]Module, error)
	SearchCourses(query string) ([]Course, error)

	CreateModule(params CreateModuleParams) (Module, error)
	GetModule(id int) (Module, error)
	SetModuleActiveChat(moduleId int, active bool) (Module, error)
	SearchModules(query string) ([]Module, error)
	ListEnrolledModules(studentId int) ([]Module, error)
	ListAvailableModules(studentId int) ([]Module, error)
	ListEnrolledCourses(studentId int) ([]Course, error)
	ListAvailableCourses(studentId int) ([]Course, error)
	ListActiveChatModules(userId int) ([]Module, error)

	CreateEnrollment(moduleId, studentId int) (Enrollment, error)
	GetEnrollment(moduleId, studentId int) (Enrollment, error)
	ListEnrollmentsByStudent(studentId int) ([]Enrollment, error)
	ListEnrollmentsByModule(moduleId int) ([]Enrollment, error)
	UpdateEnrollmentScore(moduleId, studentId int, score float64) (Enrollment, error)
	UpdateEnrollmentFeedback(moduleId, studentId int, feedback string) (Enrollment, error)
	SetModuleDeadline(moduleId int, deadline time.Time) error

	CreateChatMessage(moduleId, userId int, message string) (ChatMessage, error)
	ListRecentMessages(moduleId, limit int) ([]ChatMessage, error)

	CreateModuleFile(params CreateModuleFileParams) (ModuleFile, error)
	GetModuleFile(id int) (ModuleFile, error)
	ListModuleFiles(moduleId int) ([]ModuleFile, error)
}
