package domain

import "time"

// RunStatus outcome of a rebalance run.
type RunStatus string

const (
	RunStatusBalanced  RunStatus = "balanced"
	RunStatusPlanned   RunStatus = "planned"
	RunStatusSubmitted RunStatus = "submitted"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord audit entry describing one rebalance run.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pool       string    `json:"pool"`
	Manager    string    `json:"manager,omitempty"`
	Snapshot   Snapshot  `json:"snapshot,omitempty"`
	Swaps      []Swap    `json:"swaps,omitempty"`
	// TxHashes in swap order, empty where the node did not accept the swap.
	TxHashes   []string  `json:"tx_hashes,omitempty"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// RunRecordEntry bundles a run record with the log index it was read from.
type RunRecordEntry struct {
	Index  uint64
	Record RunRecord
}
