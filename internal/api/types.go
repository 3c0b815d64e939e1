package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a transcription run in a transport-friendly format.
type Run struct {
	ID                string `json:"id"`
	Source            string `json:"source"`
	State             string `json:"state"`
	Active            bool   `json:"active"`
	Model             string `json:"model,omitempty"`
	CompletedSegments int    `json:"completedSegments"`
	TotalSegments     int    `json:"totalSegments"`
	Error             string `json:"error,omitempty"`
	ErrorClass        string `json:"errorClass,omitempty"`
	TranscriptPath    string `json:"transcriptPath,omitempty"`
	SubtitlePath      string `json:"subtitlePath,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
	FinishedAt        string `json:"finishedAt,omitempty"`
}

// CreateRunRequest starts a run. Unset fields fall back to configuration.
type CreateRunRequest struct {
	Path      string `json:"path"`
	Model     string `json:"model,omitempty"`
	Language  string `json:"language,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Cues      *bool  `json:"cues,omitempty"`
	OutputDir string `json:"outputDir,omitempty"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status       string             `json:"status"`
	ActiveRuns   int                `json:"activeRuns"`
	UptimeS      int64              `json:"uptimeS"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
