package domain

import "time"

type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
	RunIncomplete RunStatus = "incomplete"
)

// AssetFailure names an asset that was omitted from a run and why.
type AssetFailure struct {
	AssetID   string `json:"asset_id"`
	Reason    string `json:"reason"`
	Permanent bool   `json:"permanent"`
}

// ProviderError is a non-fatal enrichment failure kept for the run report.
type ProviderError struct {
	AssetID  string `json:"asset_id"`
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Status         RunStatus       `json:"status"`
	Requested      int             `json:"requested"`
	Collected      int             `json:"collected"`
	Published      int             `json:"published"`
	Failed         []AssetFailure  `json:"failed,omitempty"`
	Unresolved     []string        `json:"unresolved,omitempty"`
	ProviderErrors []ProviderError `json:"provider_errors,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// FailedIDs lists the asset ids of every failure in report order.
func (r RunReport) FailedIDs() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.AssetID)
	}
	return out
}
