package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/studyhall/studyhall/internal/chat"
	"github.com/studyhall/studyhall/internal/config"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/testutil"
	"github.com/studyhall/studyhall/internal/types"
)

func newTestServer(t *testing.T, repo database.Repository) *Server {
	t.Helper()

	return NewServer(http.NewServeMux(), testutil.TestLogger(t), nil, repo, nil, &config.Config{
		SigningKey:           []byte("test-signing-key"),
		RegistrationPasscode: "open-sesame",
		UploadDir:            t.TempDir(),
	})
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func authedRequest(method, target string, body *bytes.Buffer, userId int) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(WithUserId(req.Context(), userId))
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "healthy",
			mockErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "database unreachable",
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			mockRepo.On("Ping").Return(tc.mockErr).Once()
			app := newTestServer(t, mockRepo)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_createAccount(t *testing.T) {
	tcases := []struct {
		name         string
		body         string
		mockUser     *database.User
		mockErr      error
		expectedCode int
	}{
		{
			name: "successful registration",
			body: `{"username":"stu1","full_name":"Stu Dent","password":"secret","passcode":"open-sesame"}`,
			mockUser: &database.User{
				Id:       1,
				Username: "stu1",
				FullName: "Stu Dent",
				Role:     string(types.RoleStudent),
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "wrong passcode",
			body:         `{"username":"stu1","full_name":"Stu Dent","password":"secret","passcode":"guess"}`,
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "missing fields",
			body:         `{"username":"stu1","passcode":"open-sesame"}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid json",
			body:         `{`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "duplicate username",
			body:         `{"username":"stu1","full_name":"Stu Dent","password":"secret","passcode":"open-sesame"}`,
			mockUser:     &database.User{},
			mockErr:      &pq.Error{Code: "23505"},
			expectedCode: http.StatusConflict,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != nil {
				mockRepo.On("CreateUser", mock.MatchedBy(func(params database.CreateUserParams) bool {
					return params.Username == "stu1" &&
						params.Role == string(types.RoleStudent) &&
						verifyPassword(params.PasswordHash, "secret")
				})).Return(*tc.mockUser, tc.mockErr).Once()
			}

			app := newTestServer(t, mockRepo)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tc.body))
			app.createAccount(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)

			if tc.expectedCode == http.StatusCreated {
				var u types.User
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
				assert.Equal(t, tc.mockUser.Username, u.Username)
				assert.Equal(t, types.RoleStudent, u.Role)
			}
		})
	}
}

func Test_login(t *testing.T) {
	pwdHash, err := hashPassword("secret")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	mockUser := database.User{
		Id:           1,
		Username:     "stu1",
		FullName:     "Stu Dent",
		PasswordHash: pwdHash,
		Role:         string(types.RoleStudent),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	tcases := []struct {
		name         string
		body         string
		mockUser     *database.User
		mockErr      error
		expectedCode int
		expectCookie bool
	}{
		{
			name:         "successful login",
			body:         `{"username":"stu1","password":"secret"}`,
			mockUser:     &mockUser,
			expectedCode: http.StatusOK,
			expectCookie: true,
		},
		{
			name:         "wrong password",
			body:         `{"username":"stu1","password":"nope"}`,
			mockUser:     &mockUser,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown user",
			body:         `{"username":"ghost","password":"secret"}`,
			mockUser:     &database.User{},
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "missing fields",
			body:         `{"username":"stu1"}`,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != nil {
				mockRepo.On("GetUserByUsername", mock.Anything).Return(*tc.mockUser, tc.mockErr).Once()
			}

			app := newTestServer(t, mockRepo)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body))
			app.login(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)

			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectCookie {
				assert.NotNil(t, cookie, "expected session cookie to be set")
				assert.NotEmpty(t, cookie.Value)
			} else {
				assert.Nil(t, cookie)
			}
		})
	}
}

func Test_logout(t *testing.T) {
	app := newTestServer(t, &database.MockRepository{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	assert.NotNil(t, cookie)
	assert.Empty(t, cookie.Value, "expected cookie value to be cleared")
}

func Test_session(t *testing.T) {
	mockUser := database.User{
		Id:       1,
		Username: "stu1",
		Role:     string(types.RoleStudent),
	}

	tcases := []struct {
		name         string
		userId       int
		mockErr      error
		expectedCode int
	}{
		{
			name:         "valid session",
			userId:       1,
			expectedCode: http.StatusOK,
		},
		{
			name:         "no user in context",
			userId:       0,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "account deleted",
			userId:       1,
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.userId > 0 {
				mockRepo.On("GetUserById", tc.userId).Return(mockUser, tc.mockErr).Once()
			}

			app := newTestServer(t, mockRepo)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}
			app.session(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_updateStatus(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	t.Run("student updates status", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		updated := student
		updated.Status = sql.NullString{String: "revising", Valid: true}

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("UpdateUserStatus", student.Id, "revising").Return(updated, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/account/status", bytes.NewBufferString(`{"status":"revising"}`), student.Id)
		app.updateStatus(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var u types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, "revising", u.Status)
	})

	t.Run("teacher is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/account/status", bytes.NewBufferString(`{"status":"busy"}`), teacher.Id)
		app.updateStatus(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_studentHome(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	t.Run("teacher is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/student/home", nil, teacher.Id)
		app.studentHome(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("student home aggregates", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("ListEnrolledCourses", student.Id).Return([]database.Course{{Id: 1, Name: "Maths"}}, nil).Once()
		mockRepo.On("ListAvailableCourses", student.Id).Return([]database.Course{{Id: 2, Name: "Physics"}}, nil).Once()
		mockRepo.On("ListEnrolledModules", student.Id).Return([]database.Module{{Id: 3, Name: "Algebra"}}, nil).Once()
		mockRepo.On("ListAvailableModules", student.Id).Return([]database.Module{}, nil).Once()
		mockRepo.On("ListEnrollmentsByStudent", student.Id).Return([]database.Enrollment{{Id: 7, ModuleId: 3, StudentId: student.Id}}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/student/home", nil, student.Id)
		app.studentHome(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp StudentHomeResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Len(t, resp.EnrolledCourses, 1)
		assert.Len(t, resp.AvailableCourses, 1)
		assert.Len(t, resp.EnrolledModules, 1)
		assert.Empty(t, resp.AvailableModules)
		assert.Len(t, resp.Enrollments, 1)
	})
}

func Test_teacherHome(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	t.Run("student is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/teacher/home", nil, student.Id)
		app.teacherHome(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("courses with modules and rosters", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()
		mockRepo.On("ListCoursesByManager", teacher.Id).Return([]database.Course{
			{Id: 1, Name: "Maths", ManagerId: sql.NullInt64{Int64: 2, Valid: true}},
		}, nil).Once()
		mockRepo.On("ListCourseModules", 1).Return([]database.Module{
			{Id: 3, Name: "Algebra", ManagerId: sql.NullInt64{Int64: 2, Valid: true}},
		}, nil).Once()
		mockRepo.On("ListEnrollmentsByModule", 3).Return([]database.Enrollment{
			{Id: 7, ModuleId: 3, StudentId: 1, StudentName: "Stu Dent"},
		}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/teacher/home", nil, teacher.Id)
		app.teacherHome(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp TeacherHomeResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Len(t, resp.Courses, 1)
		assert.Len(t, resp.Courses[0].Modules, 1)
		assert.Len(t, resp.Courses[0].Modules[0].Enrollments, 1)
	})
}

func Test_createCourse(t *testing.T) {
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}

	t.Run("teacher creates course", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()
		mockRepo.On("CreateCourse", database.CreateCourseParams{
			Name:        "Maths",
			Description: "Core maths",
			ManagerId:   teacher.Id,
		}).Return(database.Course{Id: 1, Name: "Maths", Description: "Core maths", ManagerId: sql.NullInt64{Int64: 2, Valid: true}}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/courses", bytes.NewBufferString(`{"name":"Maths","description":"Core maths"}`), teacher.Id)
		app.createCourse(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("student is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/courses", bytes.NewBufferString(`{"name":"Maths"}`), student.Id)
		app.createCourse(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_getCourse(t *testing.T) {
	tcases := []struct {
		name         string
		courseId     string
		mockCourse   database.Course
		mockErr      error
		expectedCode int
	}{
		{
			name:         "course found",
			courseId:     "1",
			mockCourse:   database.Course{Id: 1, Name: "Maths"},
			expectedCode: http.StatusOK,
		},
		{
			name:         "course not found",
			courseId:     "99",
			mockErr:      sql.ErrNoRows,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "invalid id",
			courseId:     "abc",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.courseId != "abc" {
				mockRepo.On("GetCourse", mock.Anything).Return(tc.mockCourse, tc.mockErr).Once()
			}
			if tc.mockErr == nil && tc.courseId != "abc" {
				mockRepo.On("ListCourseModules", tc.mockCourse.Id).Return([]database.Module{}, nil).Once()
			}

			app := newTestServer(t, mockRepo)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/courses/"+tc.courseId, nil)
			req.SetPathValue("id", tc.courseId)
			app.getCourse(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_addModuleToCourse(t *testing.T) {
	course := database.Course{Id: 1, Name: "Maths", ManagerId: sql.NullInt64{Int64: 2, Valid: true}}
	module := database.Module{Id: 3, Name: "Algebra", ManagerId: sql.NullInt64{Int64: 2, Valid: true}}
	manager := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}
	other := database.User{Id: 5, Username: "other", Role: string(types.RoleTeacher)}

	t.Run("manager attaches module", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", manager.Id).Return(manager, nil).Once()
		mockRepo.On("GetCourse", course.Id).Return(course, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("AddModuleToCourse", course.Id, module.Id).Return(nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/courses/1/modules", bytes.NewBufferString(`{"module_id":3}`), manager.Id)
		req.SetPathValue("id", "1")
		app.addModuleToCourse(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("non-manager is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", other.Id).Return(other, nil).Once()
		mockRepo.On("GetCourse", course.Id).Return(course, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/courses/1/modules", bytes.NewBufferString(`{"module_id":3}`), other.Id)
		req.SetPathValue("id", "1")
		app.addModuleToCourse(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("duplicate attach conflicts", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", manager.Id).Return(manager, nil).Once()
		mockRepo.On("GetCourse", course.Id).Return(course, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("AddModuleToCourse", course.Id, module.Id).Return(&pq.Error{Code: "23505"}).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/courses/1/modules", bytes.NewBufferString(`{"module_id":3}`), manager.Id)
		req.SetPathValue("id", "1")
		app.addModuleToCourse(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func Test_createModule(t *testing.T) {
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()
	mockRepo.On("CreateModule", database.CreateModuleParams{
		Name:        "Algebra",
		Description: "Linear algebra",
		ManagerId:   teacher.Id,
		ActiveChat:  true,
	}).Return(database.Module{Id: 3, Name: "Algebra", ActiveChat: true}, nil).Once()

	app := newTestServer(t, mockRepo)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/modules", bytes.NewBufferString(`{"name":"Algebra","description":"Linear algebra","active_chat":true}`), teacher.Id)
	app.createModule(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var m types.Module
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	assert.True(t, m.ActiveChat)
}

func Test_toggleChat(t *testing.T) {
	module := database.Module{Id: 3, Name: "Algebra", ManagerId: sql.NullInt64{Int64: 2, Valid: true}, ActiveChat: false}
	manager := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}

	t.Run("manager enables chat", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		enabled := module
		enabled.ActiveChat = true

		mockRepo.On("GetUserById", manager.Id).Return(manager, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("SetModuleActiveChat", module.Id, true).Return(enabled, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/modules/3/chat", bytes.NewBufferString(`{"active":true}`), manager.Id)
		req.SetPathValue("id", "3")
		app.toggleChat(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var m types.Module
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
		assert.True(t, m.ActiveChat)
	})

	t.Run("non-manager is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/modules/3/chat", bytes.NewBufferString(`{"active":true}`), student.Id)
		req.SetPathValue("id", "3")
		app.toggleChat(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_enrolModule(t *testing.T) {
	module := database.Module{Id: 3, Name: "Algebra", ManagerId: sql.NullInt64{Int64: 2, Valid: true}}
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	teacher := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	t.Run("student enrols", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		enrollment := database.Enrollment{Id: 7, ModuleId: module.Id, StudentId: student.Id}

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Twice()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Twice()
		// enrolling twice returns the same row
		mockRepo.On("CreateEnrollment", module.Id, student.Id).Return(enrollment, nil).Twice()

		app := newTestServer(t, mockRepo)

		for i := 0; i < 2; i++ {
			rr := httptest.NewRecorder()
			req := authedRequest(http.MethodPost, "/api/modules/3/enrol", nil, student.Id)
			req.SetPathValue("id", "3")
			app.enrolModule(rr, req)

			assert.Equal(t, http.StatusCreated, rr.Code)

			var e types.Enrollment
			assert.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
			assert.Equal(t, enrollment.Id, e.Id)
		}
	})

	t.Run("teacher is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", teacher.Id).Return(teacher, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/modules/3/enrol", nil, teacher.Id)
		req.SetPathValue("id", "3")
		app.enrolModule(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_enrolCourse(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	course := database.Course{Id: 1, Name: "Maths"}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
	mockRepo.On("GetCourse", course.Id).Return(course, nil).Once()
	mockRepo.On("ListCourseModules", course.Id).Return([]database.Module{{Id: 3}, {Id: 4}}, nil).Once()
	mockRepo.On("CreateEnrollment", 3, student.Id).Return(database.Enrollment{Id: 7, ModuleId: 3, StudentId: student.Id}, nil).Once()
	mockRepo.On("CreateEnrollment", 4, student.Id).Return(database.Enrollment{Id: 8, ModuleId: 4, StudentId: student.Id}, nil).Once()

	app := newTestServer(t, mockRepo)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/courses/1/enrol", nil, student.Id)
	req.SetPathValue("id", "1")
	app.enrolCourse(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var enrollments []types.Enrollment
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&enrollments))
	assert.Len(t, enrollments, 2)
}

func Test_setScore(t *testing.T) {
	module := database.Module{Id: 3, ManagerId: sql.NullInt64{Int64: 2, Valid: true}}
	manager := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}
	other := database.User{Id: 5, Username: "other", Role: string(types.RoleTeacher)}

	t.Run("manager sets score", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", manager.Id).Return(manager, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("UpdateEnrollmentScore", module.Id, 1, 87.5).Return(database.Enrollment{
			Id:        7,
			ModuleId:  module.Id,
			StudentId: 1,
			Score:     sql.NullFloat64{Float64: 87.5, Valid: true},
		}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/modules/3/students/1/score", bytes.NewBufferString(`{"score":87.5}`), manager.Id)
		req.SetPathValue("id", "3")
		req.SetPathValue("student_id", "1")
		app.setScore(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var e types.Enrollment
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
		assert.NotNil(t, e.Score)
		assert.Equal(t, 87.5, *e.Score)
	})

	t.Run("non-manager is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", other.Id).Return(other, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/modules/3/students/1/score", bytes.NewBufferString(`{"score":50}`), other.Id)
		req.SetPathValue("id", "3")
		req.SetPathValue("student_id", "1")
		app.setScore(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_setDeadline(t *testing.T) {
	module := database.Module{Id: 3, ManagerId: sql.NullInt64{Int64: 2, Valid: true}}
	manager := database.User{Id: 2, Username: "prof", Role: string(types.RoleTeacher)}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	deadline := time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC)

	mockRepo.On("GetUserById", manager.Id).Return(manager, nil).Once()
	mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
	mockRepo.On("SetModuleDeadline", module.Id, deadline).Return(nil).Once()

	app := newTestServer(t, mockRepo)

	body := fmt.Sprintf(`{"deadline":%q}`, deadline.Format(time.RFC3339))
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/modules/3/deadline", bytes.NewBufferString(body), manager.Id)
	req.SetPathValue("id", "3")
	app.setDeadline(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func Test_editFeedback(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}

	t.Run("enrolled student writes feedback", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("UpdateEnrollmentFeedback", 3, student.Id, "great module").Return(database.Enrollment{
			Id:        7,
			ModuleId:  3,
			StudentId: student.Id,
			Feedback:  sql.NullString{String: "great module", Valid: true},
		}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/modules/3/feedback", bytes.NewBufferString(`{"feedback":"great module"}`), student.Id)
		req.SetPathValue("id", "3")
		app.editFeedback(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("not enrolled", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("UpdateEnrollmentFeedback", 3, student.Id, "hi").Return(database.Enrollment{}, sql.ErrNoRows).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/modules/3/feedback", bytes.NewBufferString(`{"feedback":"hi"}`), student.Id)
		req.SetPathValue("id", "3")
		app.editFeedback(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_getMessages(t *testing.T) {
	module := database.Module{Id: 3, ManagerId: sql.NullInt64{Int64: 2, Valid: true}, ActiveChat: true}
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}

	t.Run("member reads history", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("GetEnrollment", module.Id, student.Id).Return(database.Enrollment{Id: 7}, nil).Once()
		mockRepo.On("ListRecentMessages", module.Id, 0).Return([]database.ChatMessage{
			{Id: 1, ModuleId: 3, UserId: 1, Username: "stu1", Message: "hello", CreatedAt: time.Now().UTC()},
		}, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/modules/3/messages", nil, student.Id)
		req.SetPathValue("id", "3")
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.ChatMessage
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
		assert.Len(t, messages, 1)
		assert.Equal(t, "hello", messages[0].Message)
	})

	t.Run("non-member is refused", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("GetEnrollment", module.Id, student.Id).Return(database.Enrollment{}, sql.ErrNoRows).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/modules/3/messages", nil, student.Id)
		req.SetPathValue("id", "3")
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_webchats(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
	mockRepo.On("ListActiveChatModules", student.Id).Return([]database.Module{
		{Id: 3, Name: "Algebra", ActiveChat: true},
	}, nil).Once()

	app := newTestServer(t, mockRepo)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/webchats", nil, student.Id)
	app.webchats(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var modules []types.Module
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&modules))
	assert.Len(t, modules, 1)
	assert.True(t, modules[0].ActiveChat)
}

func Test_serveWs(t *testing.T) {
	student := database.User{Id: 1, Username: "stu1", Role: string(types.RoleStudent)}
	module := database.Module{Id: 3, ManagerId: sql.NullInt64{Int64: 2, Valid: true}, ActiveChat: true}

	t.Run("enrolled student chats end to end", func(t *testing.T) {
		mockRepo := &database.MockRepository{}

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
		su.On("Incr", mock.Anything).Return(nil).Maybe()
		su.On("Decr", mock.Anything).Return(nil).Maybe()

		cs, err := chat.NewChatServer(testutil.TestLogger(t), mockRepo, su)
		if err != nil {
			t.Fatalf("failed to create chat server: %v", err)
		}
		go cs.Run()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, cs.Shutdown(ctx))
		}()

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()
		mockRepo.On("GetModule", module.Id).Return(module, nil).Once()
		mockRepo.On("GetEnrollment", module.Id, student.Id).Return(database.Enrollment{Id: 7}, nil).Once()
		mockRepo.On("CreateChatMessage", module.Id, student.Id, "hello").Return(database.ChatMessage{
			Id:        1,
			ModuleId:  module.Id,
			UserId:    student.Id,
			Username:  student.Username,
			Message:   "hello",
			CreatedAt: time.Now().UTC(),
		}, nil).Once()

		app := NewServer(http.NewServeMux(), testutil.TestLogger(t), cs, mockRepo, su, &config.Config{
			SigningKey: []byte("test-signing-key"),
		})

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(WithUserId(r.Context(), student.Id))
			r.SetPathValue("module_id", "3")
			app.serveWs(w, r)
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/module/3"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to dial: %v", err)
		}
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		err = conn.WriteJSON(map[string]string{"message": "hello"})
		assert.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			Message   string `json:"message"`
			Username  string `json:"username"`
			Timestamp string `json:"timestamp"`
		}
		err = conn.ReadJSON(&frame)
		assert.NoError(t, err)
		assert.Equal(t, "hello", frame.Message)
		assert.Equal(t, student.Username, frame.Username)
		assert.NotEmpty(t, frame.Timestamp)

		mockRepo.AssertExpectations(t)
	})

	t.Run("unauthenticated request is rejected before upgrade", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws/chat/module/3", nil)
		req.SetPathValue("module_id", "3")
		app.serveWs(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid module id", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetUserById", student.Id).Return(student, nil).Once()

		app := newTestServer(t, mockRepo)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/ws/chat/module/abc", nil, student.Id)
		req.SetPathValue("module_id", "abc")
		app.serveWs(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
