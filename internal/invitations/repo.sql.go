package invitations

const (
	selectInvitationColumns = `SELECT i.id, i.public_id, i.token_hash, i.invitee_email, i.sender_id, i.accepted,
       i.accepted_by, i.accepted_at, i.created_at,
       r.id, r.short, r.title, r.description, r.level, r.created_at
FROM invitations i
JOIN roles r ON r.id = i.role_id`

	findPendingSQL  = selectInvitationColumns + ` WHERE i.token_hash = $1 AND NOT i.accepted`
	listBySenderSQL = selectInvitationColumns + ` WHERE i.sender_id = $1 ORDER BY i.created_at DESC, i.id DESC LIMIT 50`

	insertInvitationSQL = `INSERT INTO invitations (public_id, token_hash, invitee_email, role_id, sender_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	consumeInvitationSQL = `UPDATE invitations
SET accepted = TRUE, accepted_by = $2, accepted_at = $3
WHERE token_hash = $1 AND NOT accepted`

	tokenHashUniqueKey = "invitations_token_hash_key"
)
