package garnix

// Payloads exchanged with the Garnix API. Only the fields this tool reads
// are declared; everything else in the response is ignored.

type buildStatusRequest struct {
	CommitID string `json:"commit_id"`
}

type buildLogsRequest struct {
	BuildID string `json:"build_id"`
}

type wireSummary struct {
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	GitCommit string `json:"git_commit"`
	Branch    string `json:"branch"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	Cancelled int    `json:"cancelled"`
}

type wireBuild struct {
	ID        string  `json:"id"`
	Package   string  `json:"package"`
	System    *string `json:"system"`
	Status    string  `json:"status"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	DrvPath   *string `json:"drv_path"`
}

type buildStatusResponse struct {
	Summary *wireSummary `json:"summary"`
	Builds  []wireBuild  `json:"builds"`
}

type wireLogLine struct {
	Timestamp  string `json:"timestamp"`
	LogMessage string `json:"log_message"`
}

type buildLogsResponse struct {
	Finished bool          `json:"finished"`
	Logs     []wireLogLine `json:"logs"`
}

// errorBody is the JSON error shape non-2xx responses may carry.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorBody) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
