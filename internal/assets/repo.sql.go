package assets

const (
	selectAssetColumns = `SELECT a.id, a.name, a.type, a.description, a.serial_no, a.code, a.purchased_at,
       a.return_date, a.lost, a.created_at,
       ab.id, ab.name, ab.email,
       au.id, au.name, au.email
FROM assets a
JOIN users ab ON ab.id = a.added_by
LEFT JOIN users au ON au.id = a.assigned_user_id`

	getAssetSQL  = selectAssetColumns + ` WHERE a.id = $1`
	lockAssetSQL = getAssetSQL + ` FOR UPDATE OF a`

	listOrderSQL = ` ORDER BY a.created_at DESC, a.id DESC`

	dueAssetsSQL = selectAssetColumns + `
WHERE a.assigned_user_id IS NOT NULL AND a.return_date IS NOT NULL AND a.return_date <= $1
ORDER BY au.id, a.return_date`

	insertAssetSQL = `INSERT INTO assets (name, type, description, serial_no, code, purchased_at, added_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`

	setAssignmentSQL = `UPDATE assets SET assigned_user_id = $2, return_date = $3, updated_at = NOW() WHERE id = $1`
	setLostSQL       = `UPDATE assets SET lost = $2, updated_at = NOW() WHERE id = $1`

	userRefSQL = `SELECT id, name, email FROM users WHERE id = $1`

	insertHistorySQL = `INSERT INTO asset_assignments (asset_id, user_id, action, actor_id, return_date, at)
VALUES ($1, $2, $3, $4, $5, $6)`

	historySQL = `SELECT h.id, h.asset_id, h.action, h.user_id, COALESCE(NULLIF(u.name, ''), u.email, ''),
       h.actor_id, COALESCE(NULLIF(ac.name, ''), ac.email, ''), h.return_date, h.at
FROM asset_assignments h
LEFT JOIN users u ON u.id = h.user_id
LEFT JOIN users ac ON ac.id = h.actor_id
WHERE h.asset_id = $1
ORDER BY h.at DESC, h.id DESC`

	summarySQL = `SELECT COUNT(*),
       COUNT(*) FILTER (WHERE assigned_user_id IS NOT NULL),
       COUNT(*) FILTER (WHERE assigned_user_id IS NULL),
       COUNT(*) FILTER (WHERE assigned_user_id IS NOT NULL AND return_date < $1),
       COUNT(*) FILTER (WHERE lost)
FROM assets`

	codeUniqueKey = "assets_code_key"
)
