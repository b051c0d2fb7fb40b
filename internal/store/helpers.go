package store

import (
	"database/sql"
	"fmt"

	"github.com/ortholink/callbridge/internal/models"
)

// scanMessageRecords drains rows of the message_log projection used by ListMessages.
func scanMessageRecords(rows *sql.Rows) ([]models.MessageRecord, error) {
	var out []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		var reason sql.NullString
		if err := rows.Scan(&rec.Recipient, &rec.Channel, &rec.Status, &reason, &rec.Time); err != nil {
			return nil, fmt.Errorf("scan message record failed: %w", err)
		}
		rec.Reason = reason.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message log iteration failed: %w", err)
	}
	return out, nil
}
