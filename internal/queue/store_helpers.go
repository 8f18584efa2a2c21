package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, kind, status, source_url, source_kind, source_path, input_json, options_json, progress_stage, progress_percent, progress_message, result_json, error_message, webhook_sent, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		kind            string
		statusStr       string
		sourceURL       sql.NullString
		sourceKind      sql.NullString
		sourcePath      sql.NullString
		inputJSON       sql.NullString
		optionsJSON     sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		resultJSON      sql.NullString
		errorMessage    sql.NullString
		webhookSent     sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&statusStr,
		&sourceURL,
		&sourceKind,
		&sourcePath,
		&inputJSON,
		&optionsJSON,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&resultJSON,
		&errorMessage,
		&webhookSent,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		Kind:        Kind(kind),
		Status:      Status(statusStr),
		SourceURL:   sourceURL.String,
		SourceKind:  sourceKind.String,
		SourcePath:  sourcePath.String,
		InputJSON:   inputJSON.String,
		OptionsJSON: optionsJSON.String,
		Progress: Progress{
			Stage:   progressStage.String,
			Percent: progressPercent.Float64,
			Message: progressMessage.String,
		},
		ResultJSON:   resultJSON.String,
		ErrorMessage: errorMessage.String,
	}
	if webhookSent.Valid {
		job.WebhookSent = webhookSent.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
