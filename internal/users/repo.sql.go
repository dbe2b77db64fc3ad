package users

const (
	selectUserColumns = `SELECT u.id, u.email, u.password_hash, u.name, u.avatar_key, u.created_at, u.updated_at,
       r.id, r.short, r.title, r.description, r.level, r.created_at
FROM users u
JOIN roles r ON r.id = u.role_id`

	getUserSQL        = selectUserColumns + ` WHERE u.id = $1`
	getUserByEmailSQL = selectUserColumns + ` WHERE lower(u.email) = lower($1)`
	listUsersSQL      = selectUserColumns + ` ORDER BY r.level, lower(u.name), u.id`
	countUsersSQL     = `SELECT COUNT(*) FROM users`
	emailExistsSQL    = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`
	listMembersSQL    = `SELECT id, role_id, name, email FROM users ORDER BY lower(name), id`
	insertUserSQL     = `INSERT INTO users (email, password_hash, name, role_id) VALUES ($1, $2, $3, $4) RETURNING id`
	updatePasswordSQL = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	updateProfileSQL  = `UPDATE users SET name = $2, email = $3, avatar_key = $4, updated_at = NOW() WHERE id = $1`
	emailUniqueIndex  = "users_email_key"
)
