package dto

// SchedulerStatus はスケジューラーの状態です。
type SchedulerStatus struct {
	State    string `json:"state"`
	LastTick string `json:"last_tick,omitempty"`
	NextAt   string `json:"next_at,omitempty"`
	Ticks    uint64 `json:"ticks"`
	Skipped  uint64 `json:"skipped"`
}

// InstrumentStatus は1銘柄の直近の処理結果です。
type InstrumentStatus struct {
	Instrument string           `json:"instrument"`
	Status     string           `json:"status"`
	Written    int              `json:"written"`
	Rejected   int              `json:"rejected,omitempty"`
	Checkpoint string           `json:"checkpoint,omitempty"`
	Gaps       []WindowResponse `json:"gaps,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// RunStatus は時間足ごとの直近の実行結果です。
type RunStatus struct {
	RunID       string             `json:"run_id"`
	Granularity string             `json:"granularity"`
	Status      string             `json:"status"`
	StartedAt   string             `json:"started_at"`
	DurationMs  int64              `json:"duration_ms"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Written     int                `json:"written"`
	Instruments []InstrumentStatus `json:"instruments"`
}

// StatusResponse は /status のレスポンスDTOです。
type StatusResponse struct {
	Scheduler SchedulerStatus `json:"scheduler"`
	Runs      uint64          `json:"runs"`
	LastRuns  []RunStatus     `json:"last_runs"`
}
