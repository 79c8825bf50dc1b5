package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteCSV renders ledger entries as a CSV document for compliance export.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"id", "created_at", "action", "permission_type", "permission_key", "user_id", "role", "target_user_id", "project_id", "old_value", "new_value", "reason", "created_by"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		record := []string{
			strconv.FormatInt(entry.ID, 10),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			string(entry.Action),
			string(entry.PermissionType),
			entry.PermissionKey,
			entry.UserID,
			entry.Role,
			derefOrEmpty(entry.TargetUserID),
			derefOrEmpty(entry.ProjectID),
			string(entry.OldValue),
			string(entry.NewValue),
			entry.Reason,
			entry.CreatedBy,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
