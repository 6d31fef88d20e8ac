package models

// NetworkStats is the nested network counter block of a stats payload.
type NetworkStats struct {
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
}

// Stats is the resource usage snapshot sent with the "stats" event.
type Stats struct {
	// State is the server power state (offline, starting, running, stopping)
	State string `json:"state,omitempty"`

	// Uptime is the process uptime in milliseconds
	Uptime int64 `json:"uptime,omitempty"`

	// CPUAbsolute is the CPU usage in percent of one core
	CPUAbsolute float64 `json:"cpu_absolute,omitempty"`

	// MemoryBytes is the current memory usage
	MemoryBytes uint64 `json:"memory_bytes,omitempty"`

	// MemoryLimitBytes is the container memory limit
	MemoryLimitBytes uint64 `json:"memory_limit_bytes,omitempty"`

	// DiskBytes is the disk space used by the server
	DiskBytes uint64 `json:"disk_bytes,omitempty"`

	// NetworkRxBytes and NetworkTxBytes are the flat network counters
	NetworkRxBytes uint64 `json:"network_rx_bytes,omitempty"`
	NetworkTxBytes uint64 `json:"network_tx_bytes,omitempty"`

	// Network is the nested form some daemon versions send
	Network *NetworkStats `json:"network,omitempty"`
}
