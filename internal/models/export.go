package models

// ExportKind enumerates downloadable datasets.
type ExportKind string

const (
	ExportAssignments     ExportKind = "assignments"
	ExportSatisfaction    ExportKind = "satisfaction"
	ExportTeacherSchedule ExportKind = "teacher-schedule"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatICS  ExportFormat = "ics"
)
