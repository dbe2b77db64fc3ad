package roles

const (
	selectRoleColumns = `SELECT id, short, title, description, level, created_at FROM roles`

	listRolesSQL    = selectRoleColumns + ` ORDER BY level, id`
	getRoleShortSQL = selectRoleColumns + ` WHERE short = $1`
	getRoleByIDSQL  = selectRoleColumns + ` WHERE id = $1`
)
