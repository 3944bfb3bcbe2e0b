package dto

import "time"

// SubjectStat aggregates grades of one subject on a /20 scale.
type SubjectStat struct {
	SubjectID      uint    `json:"subject_id"`
	Name           string  `json:"name"`
	Code           string  `json:"code"`
	Color          string  `json:"color"`
	GradedStudents int     `json:"graded_students"`
	Average        float64 `json:"average"`
}

// DistributionBucket counts grades within a /20 range.
type DistributionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MonthlyProgress is the average grade of one calendar month.
type MonthlyProgress struct {
	Month   string  `json:"month"`
	Average float64 `json:"average"`
	Grades  int     `json:"grades"`
}

// DashboardResponse aggregates the grade book overview.
type DashboardResponse struct {
	TotalStudents  int64                `json:"total_students"`
	TotalGrades    int64                `json:"total_grades"`
	AverageGrade   float64              `json:"average_grade"`
	TotalExports   int64                `json:"total_exports"`
	RecentActivity []ActivityResponse   `json:"recent_activity"`
	SubjectStats   []SubjectStat        `json:"subject_stats"`
	Distribution   []DistributionBucket `json:"distribution"`
	Progress       []MonthlyProgress    `json:"progress"`
	GeneratedAt    time.Time            `json:"generated_at"`
	CacheHit       bool                 `json:"cache_hit"`
}
