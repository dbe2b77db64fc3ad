package passwordreset

const (
	selectRequestColumns = `SELECT id, public_id, token_hash, user_id, used, used_at, created_at FROM password_resets`

	findByTokenSQL = selectRequestColumns + ` WHERE token_hash = $1`
	lockByTokenSQL = findByTokenSQL + ` FOR UPDATE`

	insertRequestSQL = `INSERT INTO password_resets (public_id, token_hash, user_id, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	markUsedSQL = `UPDATE password_resets SET used = TRUE, used_at = $2 WHERE id = $1 AND NOT used`

	tokenHashUniqueKey = "password_resets_token_hash_key"
)
