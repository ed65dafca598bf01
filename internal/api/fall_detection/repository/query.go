package fallRepository

const (
	queryCreateAlert = `
		INSERT INTO alerts (
			id,
			patient_id,
			type,
			severity,
			status,
			description,
			snapshot_url,
			created_at,
			updated_at
		) VALUES (
			:id,
			:patient_id,
			:type,
			:severity,
			:status,
			:description,
			:snapshot_url,
			:created_at,
			:updated_at
		)
	`

	queryGetAlertByID = `
		SELECT
			id,
			patient_id,
			type,
			severity,
			status,
			description,
			snapshot_url,
			created_at,
			updated_at
		FROM alerts
		WHERE id = :id
	`

	queryListAlertsByPatient = `
		SELECT
			id,
			patient_id,
			type,
			severity,
			status,
			description,
			snapshot_url,
			created_at,
			updated_at
		FROM alerts
		WHERE patient_id = :patient_id
			AND (:status = '' OR status = :status)
		ORDER BY created_at DESC
		LIMIT :limit
	`

	queryCountUnresolvedAlerts = `
		SELECT COUNT(*)
		FROM alerts
		WHERE status <> 'resolved'
	`

	queryUpdateAlertStatus = `
		UPDATE alerts
		SET
			status = :status,
			updated_at = :updated_at
		WHERE id = :id
	`
)
