package model

// HistoryExport is the top-level JSON structure for the export command.
type HistoryExport struct {
	CatalogVersion string           `json:"catalog_version"`
	GeneratedAt    string           `json:"generated_at"`
	Reports        []ReportModel    `json:"reports"`
	Progress       []ProgressReport `json:"progress"`
}

// CandidateHistory holds one candidate with all stored assessment records.
type CandidateHistory struct {
	Candidate   Candidate    `json:"candidate"`
	Assessments []Assessment `json:"assessments"`
}

// Info converts a candidate to its report identity block.
func (c Candidate) Info() CandidateInfo {
	info := CandidateInfo{ID: c.ID, FullName: c.FullName, Address: c.Address}
	if !c.DOB.IsZero() {
		dob := c.DOB
		info.DOB = &dob
	}
	return info
}

// Info converts an assessment record to its report description block.
func (a Assessment) Info() AssessmentInfo {
	return AssessmentInfo{
		ID:               a.ID,
		Status:           a.Status,
		SubmittedAt:      a.SubmittedAt,
		AssessorComments: a.AssessorComments,
		LeadComments:     a.LeadComments,
	}
}
