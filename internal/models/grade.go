package models

// Transcript aggregates a student's graded enrollments with a cumulative
// credit-weighted GPA on the 4 scale.
type Transcript struct {
	StudentID    string             `json:"student_id"`
	StudentName  string             `json:"student_name"`
	StudentCode  string             `json:"student_code"`
	Rows         []EnrollmentDetail `json:"rows"`
	TotalCredits int                `json:"total_credits"`
	GPA          float64            `json:"gpa"`
}

// HistogramBucket is one 10-scale score band with its student count.
type HistogramBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SectionGradeStats summarizes grade outcomes across a section.
type SectionGradeStats struct {
	SectionID string            `json:"section_id"`
	Total     int               `json:"total"`
	Graded    int               `json:"graded"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Histogram []HistogramBucket `json:"histogram"`
}
