package database

import (
	"fmt"
	"time"
)

const defaultMessageLimit = 50

func (db *PgRepository) CreateUser(params CreateUserParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (username, full_name, password_hash, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, full_name, role, created_at, updated_at",
		params.Username,
		params.FullName,
		params.PasswordHash,
		params.Role,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.FullName,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) GetUserById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, full_name, role, status, date_of_birth, created_at, updated_at "+
			"FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.DateOfBirth,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) GetUserByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, full_name, password_hash, role, status, created_at, updated_at "+
			"FROM users WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.FullName,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) UpdateUserStatus(userId int, status string) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 "+
			"RETURNING id, username, full_name, role, status, created_at, updated_at",
		userId,
		status,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) SearchStudents(query string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, username, full_name, role, status FROM users "+
			"WHERE role = 'student' AND (full_name ILIKE '%' || $1 || '%' OR username ILIKE '%' || $1 || '%') "+
			"ORDER BY username",
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err = rows.Scan(&u.Id, &u.Username, &u.FullName, &u.Role, &u.Status); err != nil {
			break
		}

		users = append(users, u)
	}
	return users, err
}

func (db *PgRepository) CreateCourse(params CreateCourseParams) (Course, error) {
	res := db.conn.QueryRow(
		"INSERT INTO courses (name, description, manager_id) VALUES ($1, $2, $3) "+
			"RETURNING id, name, description, manager_id",
		params.Name,
		params.Description,
		params.ManagerId,
	)

	var c Course
	err := res.Scan(
		&c.Id,
		&c.Name,
		&c.Description,
		&c.ManagerId,
	)

	return c, err
}

func (db *PgRepository) GetCourse(id int) (Course, error) {
	row := db.conn.QueryRow(
		"SELECT c.id, c.name, c.description, c.manager_id, COALESCE(u.full_name, '') "+
			"FROM courses c LEFT JOIN users u ON c.manager_id = u.id WHERE c.id = $1 LIMIT 1",
		id,
	)

	var c Course
	err := row.Scan(
		&c.Id,
		&c.Name,
		&c.Description,
		&c.ManagerId,
		&c.ManagerName,
	)

	return c, err
}

func (db *PgRepository) ListCoursesByManager(managerId int) ([]Course, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, description, manager_id FROM courses WHERE manager_id = $1 ORDER BY id",
		managerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err = rows.Scan(&c.Id, &c.Name, &c.Description, &c.ManagerId); err != nil {
			break
		}

		courses = append(courses, c)
	}
	return courses, err
}

func (db *PgRepository) AddModuleToCourse(courseId, moduleId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO course_modules (course_id, module_id) VALUES ($1, $2)",
		courseId,
		moduleId,
	)

	return err
}

func (db *PgRepository) ListCourseModules(courseId int) ([]Module, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.name, m.description, m.manager_id, m.active_chat FROM course_modules cm "+
			"JOIN modules m ON m.id = cm.module_id WHERE cm.course_id = $1 ORDER BY m.id",
		courseId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err = rows.Scan(&m.Id, &m.Name, &m.Description, &m.ManagerId, &m.ActiveChat); err != nil {
			break
		}

		modules = append(modules, m)
	}
	return modules, err
}

func (db *PgRepository) SearchCourses(query string) ([]Course, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.name, c.description, c.manager_id, COALESCE(u.full_name, '') "+
			"FROM courses c LEFT JOIN users u ON c.manager_id = u.id "+
			"WHERE c.name ILIKE '%' || $1 || '%' OR c.description ILIKE '%' || $1 || '%' "+
			"OR u.full_name ILIKE '%' || $1 || '%' ORDER BY c.id",
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err = rows.Scan(&c.Id, &c.Name, &c.Description, &c.ManagerId, &c.ManagerName); err != nil {
			break
		}

		courses = append(courses, c)
	}
	return courses, err
}

func (db *PgRepository) CreateModule(params CreateModuleParams) (Module, error) {
	res := db.conn.QueryRow(
		"INSERT INTO modules (name, description, manager_id, active_chat) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, name, description, manager_id, active_chat",
		params.Name,
		params.Description,
		params.ManagerId,
		params.ActiveChat,
	)

	var m Module
	err := res.Scan(
		&m.Id,
		&m.Name,
		&m.Description,
		&m.ManagerId,
		&m.ActiveChat,
	)

	return m, err
}

func (db *PgRepository) GetModule(id int) (Module, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.name, m.description, m.manager_id, m.active_chat, COALESCE(u.full_name, '') "+
			"FROM modules m LEFT JOIN users u ON m.manager_id = u.id WHERE m.id = $1 LIMIT 1",
		id,
	)

	var m Module
	err := row.Scan(
		&m.Id,
		&m.Name,
		&m.Description,
		&m.ManagerId,
		&m.ActiveChat,
		&m.ManagerName,
	)

	return m, err
}

func (db *PgRepository) SetModuleActiveChat(moduleId int, active bool) (Module, error) {
	res := db.conn.QueryRow(
		"UPDATE modules SET active_chat = $2 WHERE id = $1 "+
			"RETURNING id, name, description, manager_id, active_chat",
		moduleId,
		active,
	)

	var m Module
	err := res.Scan(
		&m.Id,
		&m.Name,
		&m.Description,
		&m.ManagerId,
		&m.ActiveChat,
	)

	return m, err
}

func (db *PgRepository) SearchModules(query string) ([]Module, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.name, m.description, m.manager_id, m.active_chat, COALESCE(u.full_name, '') "+
			"FROM modules m LEFT JOIN users u ON m.manager_id = u.id "+
			"WHERE m.name ILIKE '%' || $1 || '%' OR m.description ILIKE '%' || $1 || '%' "+
			"OR u.full_name ILIKE '%' || $1 || '%' ORDER BY m.id",
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err = rows.Scan(&m.Id, &m.Name, &m.Description, &m.ManagerId, &m.ActiveChat, &m.ManagerName); err != nil {
			break
		}

		modules = append(modules, m)
	}
	return modules, err
}

func (db *PgRepository) ListEnrolledModules(studentId int) ([]Module, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.name, m.description, m.manager_id, m.active_chat FROM enrollments e "+
			"JOIN modules m ON m.id = e.module_id WHERE e.student_id = $1 ORDER BY m.id",
		studentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err = rows.Scan(&m.Id, &m.Name, &m.Description, &m.ManagerId, &m.ActiveChat); err != nil {
			break
		}

		modules = append(modules, m)
	}
	return modules, err
}

func (db *PgRepository) ListAvailableModules(studentId int) ([]Module, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.name, m.description, m.manager_id, m.active_chat FROM modules m "+
			"WHERE NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.module_id = m.id AND e.student_id = $1) "+
			"ORDER BY m.id",
		studentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err = rows.Scan(&m.Id, &m.Name, &m.Description, &m.ManagerId, &m.ActiveChat); err != nil {
			break
		}

		modules = append(modules, m)
	}
	return modules, err
}

func (db *PgRepository) ListEnrolledCourses(studentId int) ([]Course, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT c.id, c.name, c.description, c.manager_id FROM courses c "+
			"JOIN course_modules cm ON cm.course_id = c.id "+
			"JOIN enrollments e ON e.module_id = cm.module_id "+
			"WHERE e.student_id = $1 ORDER BY c.id",
		studentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err = rows.Scan(&c.Id, &c.Name, &c.Description, &c.ManagerId); err != nil {
			break
		}

		courses = append(courses, c)
	}
	return courses, err
}

func (db *PgRepository) ListAvailableCourses(studentId int) ([]Course, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.name, c.description, c.manager_id FROM courses c "+
			"WHERE NOT EXISTS (SELECT 1 FROM course_modules cm "+
			"JOIN enrollments e ON e.module_id = cm.module_id "+
			"WHERE cm.course_id = c.id AND e.student_id = $1) ORDER BY c.id",
		studentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		if err = rows.Scan(&c.Id, &c.Name, &c.Description, &c.ManagerId); err != nil {
			break
		}

		courses = append(courses, c)
	}
	return courses, err
}

func (db *PgRepository) ListActiveChatModules(userId int) ([]Module, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT m.id, m.name, m.description, m.manager_id, m.active_chat FROM modules m "+
			"LEFT JOIN enrollments e ON e.module_id = m.id "+
			"WHERE m.active_chat AND (m.manager_id = $1 OR e.student_id = $1) ORDER BY m.id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err = rows.Scan(&m.Id, &m.Name, &m.Description, &m.ManagerId, &m.ActiveChat); err != nil {
			break
		}

		modules = append(modules, m)
	}
	return modules, err
}

// CreateEnrollment is a get-or-create: enrolling twice returns the existing
// row unchanged, preserving the unique (module_id, student_id) invariant.
func (db *PgRepository) CreateEnrollment(moduleId, studentId int) (Enrollment, error) {
	res := db.conn.QueryRow(
		"INSERT INTO enrollments (module_id, student_id, created_at, updated_at) VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (module_id, student_id) DO UPDATE SET updated_at = enrollments.updated_at "+
			"RETURNING id, module_id, student_id, score, deadline, feedback, created_at, updated_at",
		moduleId,
		studentId,
		time.Now().UTC(),
	)

	var e Enrollment
	err := res.Scan(
		&e.Id,
		&e.ModuleId,
		&e.StudentId,
		&e.Score,
		&e.Deadline,
		&e.Feedback,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	return e, err
}

func (db *PgRepository) GetEnrollment(moduleId, studentId int) (Enrollment, error) {
	row := db.conn.QueryRow(
		"SELECT id, module_id, student_id, score, deadline, feedback, created_at, updated_at "+
			"FROM enrollments WHERE module_id = $1 AND student_id = $2 LIMIT 1",
		moduleId,
		studentId,
	)

	var e Enrollment
	err := row.Scan(
		&e.Id,
		&e.ModuleId,
		&e.StudentId,
		&e.Score,
		&e.Deadline,
		&e.Feedback,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	return e, err
}

func (db *PgRepository) ListEnrollmentsByStudent(studentId int) ([]Enrollment, error) {
	rows, err := db.conn.Query(
		"SELECT id, module_id, student_id, score, deadline, feedback, created_at, updated_at "+
			"FROM enrollments WHERE student_id = $1 ORDER BY module_id",
		studentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []Enrollment
	for rows.Next() {
		var e Enrollment
		if err = rows.Scan(&e.Id, &e.ModuleId, &e.StudentId, &e.Score, &e.Deadline, &e.Feedback, &e.CreatedAt, &e.UpdatedAt); err != nil {
			break
		}

		enrollments = append(enrollments, e)
	}
	return enrollments, err
}

func (db *PgRepository) ListEnrollmentsByModule(moduleId int) ([]Enrollment, error) {
	rows, err := db.conn.Query(
		"SELECT e.id, e.module_id, e.student_id, u.full_name, e.score, e.deadline, e.feedback, e.created_at, e.updated_at "+
			"FROM enrollments e JOIN users u ON u.id = e.student_id WHERE e.module_id = $1 ORDER BY u.full_name",
		moduleId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []Enrollment
	for rows.Next() {
		var e Enrollment
		if err = rows.Scan(&e.Id, &e.ModuleId, &e.StudentId, &e.StudentName, &e.Score, &e.Deadline, &e.Feedback, &e.CreatedAt, &e.UpdatedAt); err != nil {
			break
		}

		enrollments = append(enrollments, e)
	}
	return enrollments, err
}

func (db *PgRepository) UpdateEnrollmentScore(moduleId, studentId int, score float64) (Enrollment, error) {
	res := db.conn.QueryRow(
		"UPDATE enrollments SET score = $3, updated_at = $4 WHERE module_id = $1 AND student_id = $2 "+
			"RETURNING id, module_id, student_id, score, deadline, feedback, created_at, updated_at",
		moduleId,
		studentId,
		score,
		time.Now().UTC(),
	)

	var e Enrollment
	err := res.Scan(
		&e.Id,
		&e.ModuleId,
		&e.StudentId,
		&e.Score,
		&e.Deadline,
		&e.Feedback,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	return e, err
}

func (db *PgRepository) UpdateEnrollmentFeedback(moduleId, studentId int, feedback string) (Enrollment, error) {
	res := db.conn.QueryRow(
		"UPDATE enrollments SET feedback = $3, updated_at = $4 WHERE module_id = $1 AND student_id = $2 "+
			"RETURNING id, module_id, student_id, score, deadline, feedback, created_at, updated_at",
		moduleId,
		studentId,
		feedback,
		time.Now().UTC(),
	)

	var e Enrollment
	err := res.Scan(
		&e.Id,
		&e.ModuleId,
		&e.StudentId,
		&e.Score,
		&e.Deadline,
		&e.Feedback,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	return e, err
}

func (db *PgRepository) SetModuleDeadline(moduleId int, deadline time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE enrollments SET deadline = $2, updated_at = $3 WHERE module_id = $1",
		moduleId,
		deadline,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) CreateChatMessage(moduleId, userId int, message string) (ChatMessage, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_messages (module_id, user_id, message) VALUES ($1, $2, $3) "+
			"RETURNING id, module_id, user_id, message, created_at",
		moduleId,
		userId,
		message,
	)

	var msg ChatMessage
	err := res.Scan(
		&msg.Id,
		&msg.ModuleId,
		&msg.UserId,
		&msg.Message,
		&msg.CreatedAt,
	)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("create chat message: %w", err)
	}

	return msg, nil
}

func (db *PgRepository) ListRecentMessages(moduleId, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > defaultMessageLimit {
		limit = defaultMessageLimit
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.module_id, m.user_id, u.username, m.message, m.created_at FROM chat_messages m "+
			"JOIN users u ON u.id = m.user_id WHERE m.module_id = $1 ORDER BY m.created_at, m.id LIMIT $2",
		moduleId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]ChatMessage, 0, limit)
	for rows.Next() {
		var msg ChatMessage
		if err = rows.Scan(&msg.Id, &msg.ModuleId, &msg.UserId, &msg.Username, &msg.Message, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgRepository) CreateModuleFile(params CreateModuleFileParams) (ModuleFile, error) {
	res := db.conn.QueryRow(
		"INSERT INTO module_files (module_id, uploaded_by, name, storage_key) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, module_id, uploaded_by, name, storage_key, uploaded_at",
		params.ModuleId,
		params.UploadedBy,
		params.Name,
		params.StorageKey,
	)

	var f ModuleFile
	err := res.Scan(
		&f.Id,
		&f.ModuleId,
		&f.UploadedBy,
		&f.Name,
		&f.StorageKey,
		&f.UploadedAt,
	)

	return f, err
}

func (db *PgRepository) GetModuleFile(id int) (ModuleFile, error) {
	row := db.conn.QueryRow(
		"SELECT id, module_id, uploaded_by, name, storage_key, uploaded_at FROM module_files "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var f ModuleFile
	err := row.Scan(
		&f.Id,
		&f.ModuleId,
		&f.UploadedBy,
		&f.Name,
		&f.StorageKey,
		&f.UploadedAt,
	)

	return f, err
}

func (db *PgRepository) ListModuleFiles(moduleId int) ([]ModuleFile, error) {
	rows, err := db.conn.Query(
		"SELECT id, module_id, uploaded_by, name, storage_key, uploaded_at FROM module_files "+
			"WHERE module_id = $1 ORDER BY uploaded_at, id",
		moduleId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []ModuleFile
	for rows.Next() {
		var f ModuleFile
		if err = rows.Scan(&f.Id, &f.ModuleId, &f.UploadedBy, &f.Name, &f.StorageKey, &f.UploadedAt); err != nil {
			break
		}

		files = append(files, f)
	}
	return files, err
}
