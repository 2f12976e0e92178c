package database

// Contact queries
const (
	upsertContactQuery = `
		INSERT INTO contacts (
			vendor_contact_id, patient_id, channel, channel_identity,
			display_name, opted_in, opted_out
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id, channel) DO UPDATE SET
			vendor_contact_id = CASE
				WHEN contacts.vendor_contact_id = '' THEN excluded.vendor_contact_id
				ELSE contacts.vendor_contact_id
			END,
			channel_identity = excluded.channel_identity,
			display_name = excluded.display_name,
			opted_in = excluded.opted_in,
			opted_out = excluded.opted_out
	`

	selectContactColumns = `
		SELECT id, vendor_contact_id, patient_id, channel, channel_identity,
			   display_name, opted_in, opted_out, created_at, updated_at
		FROM contacts
	`

	selectContactByPatientQuery  = selectContactColumns + ` WHERE patient_id = ? AND channel = ?`
	selectContactByIdentityQuery = selectContactColumns + ` WHERE channel_identity = ?`
)

// Conversation queries
const (
	insertConversationQuery = `
		INSERT INTO conversations (
			id, vendor_conversation_id, vendor_contact_id, patient_id, channel, status
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	selectConversationColumns = `
		SELECT id, vendor_conversation_id, vendor_contact_id, patient_id,
			   channel, status, last_polled_at, last_message_at,
			   created_at, updated_at
		FROM conversations
	`

	selectConversationByIDQuery     = selectConversationColumns + ` WHERE id = ?`
	selectActiveConversationQuery   = selectConversationColumns + ` WHERE patient_id = ? AND channel = ? AND status = 'ACTIVE' ORDER BY created_at DESC LIMIT 1`
	selectActiveConversationsQuery  = selectConversationColumns + ` WHERE status = 'ACTIVE' ORDER BY created_at`
	updateConversationStatusQuery   = `UPDATE conversations SET status = ? WHERE id = ?`
	updateConversationVendorQuery   = `UPDATE conversations SET vendor_conversation_id = ? WHERE id = ?`
	updateConversationPolledQuery   = `UPDATE conversations SET last_polled_at = ? WHERE id = ?`
	updateConversationActivityQuery = `UPDATE conversations SET last_message_at = ? WHERE id = ?`
)

// Message queries
const (
	insertMessageIfNewQuery = `
		INSERT OR IGNORE INTO messages (
			vendor_message_id, conversation_id, direction, channel, body,
			media_url, status, template_key, metadata, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectMessageColumns = `
		SELECT id, vendor_message_id, conversation_id, direction, channel,
			   body, media_url, status, template_key, metadata,
			   sent_at, delivered_at, read_at, created_at
		FROM messages
	`

	selectMessageByVendorIDQuery      = selectMessageColumns + ` WHERE vendor_message_id = ?`
	selectMessagesByConversationQuery = selectMessageColumns + ` WHERE conversation_id = ? ORDER BY created_at`

	updateMessageStatusQuery = `
		UPDATE messages
		SET status = ?,
			delivered_at = COALESCE(delivered_at, ?),
			read_at = COALESCE(read_at, ?)
		WHERE vendor_message_id = ?
	`

	deleteOldMessagesQuery = `
		DELETE FROM messages
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)

// Consent queries
const (
	upsertConsentQuery = `
		INSERT INTO patient_consent (
			patient_id, phone_number, opted_in, opt_in_method, opt_in_date,
			opt_in_ip, opted_out, opt_out_method, opt_out_date, consent_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id, phone_number) DO UPDATE SET
			opted_in = excluded.opted_in,
			opt_in_method = excluded.opt_in_method,
			opt_in_date = excluded.opt_in_date,
			opt_in_ip = excluded.opt_in_ip,
			opted_out = excluded.opted_out,
			opt_out_method = excluded.opt_out_method,
			opt_out_date = excluded.opt_out_date,
			consent_text = excluded.consent_text
	`

	selectConsentColumns = `
		SELECT id, patient_id, phone_number, opted_in, opt_in_method,
			   opt_in_date, opt_in_ip, opted_out, opt_out_method,
			   opt_out_date, consent_text, created_at, updated_at
		FROM patient_consent
	`

	selectConsentQuery          = selectConsentColumns + ` WHERE patient_id = ? AND phone_number = ?`
	selectConsentByPhoneQuery   = selectConsentColumns + ` WHERE phone_number = ? ORDER BY updated_at DESC LIMIT 1`
	selectConsentByPatientQuery = selectConsentColumns + ` WHERE patient_id = ? ORDER BY updated_at DESC LIMIT 1`
)

// Patient directory queries
const (
	selectDisplayNameByPatientQuery = `
		SELECT display_name FROM contacts
		WHERE patient_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`
)

// Template queries
const (
	upsertTemplateQuery = `
		INSERT INTO message_templates (
			key, display_name, category, applicability, body,
			required_variables, compliance_score, approved, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			display_name = excluded.display_name,
			category = excluded.category,
			applicability = excluded.applicability,
			body = excluded.body,
			required_variables = excluded.required_variables,
			compliance_score = excluded.compliance_score,
			approved = excluded.approved,
			active = excluded.active
	`

	selectTemplateColumns = `
		SELECT id, key, display_name, category, applicability, body,
			   required_variables, compliance_score, approved, active,
			   vendor_template_id, created_at, updated_at
		FROM message_templates
	`

	selectTemplateByKeyQuery    = selectTemplateColumns + ` WHERE key = ?`
	selectActiveTemplatesQuery  = selectTemplateColumns + ` WHERE active = 1 ORDER BY key`
	selectAllTemplatesQuery     = selectTemplateColumns + ` ORDER BY key`
	updateVendorTemplateIDQuery = `UPDATE message_templates SET vendor_template_id = ? WHERE key = ?`
)
