package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateUserStatus(userId int, status string) (User, error) {
	args := m.Called(userId, status)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) SearchStudents(query string) ([]User, error) {
	args := m.Called(query)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) CreateCourse(params CreateCourseParams) (Course, error) {
	args := m.Called(params)
	return args.Get(0).(Course), args.Error(1)
}
func (m *MockRepository) GetCourse(id int) (Course, error) {
	args := m.Called(id)
	return args.Get(0).(Course), args.Error(1)
}
func (m *MockRepository) ListCoursesByManager(managerId int) ([]Course, error) {
	args := m.Called(managerId)
	return args.Get(0).([]Course), args.Error(1)
}
func (m *MockRepository) AddModuleToCourse(courseId, moduleId int) error {
	args := m.Called(courseId, moduleId)
	return args.Error(0)
}
func (m *MockRepository) ListCourseModules(courseId int) ([]Module, error) {
	args := m.Called(courseId)
	return args.Get(0).([]Module), args.Error(1)
}
func (m *MockRepository) SearchCourses(query string) ([]Course, error) {
	args := m.Called(query)
	return args.Get(0).([]Course), args.Error(1)
}
func (m *MockRepository) CreateModule(params CreateModuleParams) (Module, error) {
	args := m.Called(params)
	return args.Get(0).(Module), args.Error(1)
}
func (m *MockRepository) GetModule(id int) (Module, error) {
	args := m.Called(id)
	return args.Get(0).(Module), args.Error(1)
}
func (m *MockRepository) SetModuleActiveChat(moduleId int, active bool) (Module, error) {
	args := m.Called(moduleId, active)
	return args.Get(0).(Module), args.Error(1)
}
func (m *MockRepository) SearchModules(query string) ([]Module, error) {
	args := m.Called(query)
	return args.Get(0).([]Module), args.Error(1)
}
func (m *MockRepository) ListEnrolledModules(studentId int) ([]Module, error) {
	args := m.Called(studentId)
	return args.Get(0).([]Module), args.Error(1)
}
func (m *MockRepository) ListAvailableModules(studentId int) ([]Module, error) {
	args := m.Called(studentId)
	return args.Get(0).([]Module), args.Error(1)
}
func (m *MockRepository) ListEnrolledCourses(studentId int) ([]Course, error) {
	args := m.Called(studentId)
	return args.Get(0).([]Course), args.Error(1)
}
func (m *MockRepository) ListAvailableCourses(studentId int) ([]Course, error) {
	args := m.Called(studentId)
	return args.Get(0).([]Course), args.Error(1)
}
func (m *MockRepository) ListActiveChatModules(userId int) ([]Module, error) {
	args := m.Called(userId)
	return args.Get(0).([]Module), args.Error(1)
}
func (m *MockRepository) CreateEnrollment(moduleId, studentId int) (Enrollment, error) {
	args := m.Called(moduleId, studentId)
	return args.Get(0).(Enrollment), args.Error(1)
}
func (m *MockRepository) GetEnrollment(moduleId, studentId int) (Enrollment, error) {
	args := m.Called(moduleId, studentId)
	return args.Get(0).(Enrollment), args.Error(1)
}
func (m *MockRepository) ListEnrollmentsByStudent(studentId int) ([]Enrollment, error) {
	args := m.Called(studentId)
	return args.Get(0).([]Enrollment), args.Error(1)
}
func (m *MockRepository) ListEnrollmentsByModule(moduleId int) ([]Enrollment, error) {
	args := m.Called(moduleId)
	return args.Get(0).([]Enrollment), args.Error(1)
}
func (m *MockRepository) UpdateEnrollmentScore(moduleId, studentId int, score float64) (Enrollment, error) {
	args := m.Called(moduleId, studentId, score)
	return args.Get(0).(Enrollment), args.Error(1)
}
func (m *MockRepository) UpdateEnrollmentFeedback(moduleId, studentId int, feedback string) (Enrollment, error) {
	args := m.Called(moduleId, studentId, feedback)
	return args.Get(0).(Enrollment), args.Error(1)
}
func (m *MockRepository) SetModuleDeadline(moduleId int, deadline time.Time) error {
	args := m.Called(moduleId, deadline)
	return args.Error(0)
}
func (m *MockRepository) CreateChatMessage(moduleId, userId int, message string) (ChatMessage, error) {
	args := m.Called(moduleId, userId, message)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockRepository) ListRecentMessages(moduleId, limit int) ([]ChatMessage, error) {
	args := m.Called(moduleId, limit)
	return args.Get(0).([]ChatMessage), args.Error(1)
}
func (m *MockRepository) CreateModuleFile(params CreateModuleFileParams) (ModuleFile, error) {
	args := m.Called(params)
	return args.Get(0).(ModuleFile), args.Error(1)
}
func (m *MockRepository) GetModuleFile(id int) (ModuleFile, error) {
	args := m.Called(id)
	return args.Get(0).(ModuleFile), args.Error(1)
}
func (m *MockRepository) ListModuleFiles(moduleId int) ([]ModuleFile, error) {
	args := m.Called(moduleId)
	return args.Get(0).([]ModuleFile), args.Error(1)
}
