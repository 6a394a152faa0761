package rbac

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// DefaultPolicy: students take quizzes and see their own attempts, teachers
// author and review, admins do everything.
var DefaultPolicy = Policy{
	RoleStudent: {
		"quiz:take",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	RoleTeacher: {
		"quiz:author",
		"quiz:delete",
		"quiz:take",
		"attempt:view-*",
	},
	RoleAdmin: {"*"},
}
