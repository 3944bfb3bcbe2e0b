package dto

// StudentImportRowError reports a rejected CSV line.
type StudentImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// StudentImportResponse summarises a CSV import or its preview.
type StudentImportResponse struct {
	DryRun   bool                    `json:"dry_run"`
	Total    int                     `json:"total"`
	Imported int                     `json:"imported"`
	Students []StudentResponse       `json:"students"`
	Errors   []StudentImportRowError `json:"errors"`
}
