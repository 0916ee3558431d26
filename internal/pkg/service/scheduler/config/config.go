// Package config is the single source of truth for all scheduler policies:
// TTLs, cache windows, retry ceilings and the control directive vocabulary.
package config

import (
	"context"
	"time"

	"github.com/gridrun/gridrun/internal/pkg/validator"
)

// Config is the scheduler configuration, see DefaultConfig for the canonical policy values.
type Config struct {
	// NodeID identifies this scheduler process in claim markers and transition records.
	// Empty value is replaced by the servicectx process unique ID.
	NodeID string `json:"nodeId" mapstructure:"node-id"`

	Grid   GridConfig   `json:"grid" mapstructure:"grid"`
	Layout LayoutConfig `json:"layout" mapstructure:"layout"`
	Tokens TokenConfig  `json:"tokens" mapstructure:"tokens"`

	// ClaimTTL is the lease window, an older claim marker is abandoned and reclaimable.
	ClaimTTL time.Duration `json:"claimTTL" mapstructure:"claim-ttl" validate:"required"`
	// CacheTTL bounds staleness of cached grid reads, claims always bypass the cache.
	CacheTTL time.Duration `json:"cacheTTL" mapstructure:"cache-ttl" validate:"required"`
	// RetryCeiling is the number of replays after the first failure, then the task is Fatal.
	RetryCeiling int `json:"retryCeiling" mapstructure:"retry-ceiling" validate:"gte=0"`
	// RetryDelay is the backoff window between replays of a failed task.
	RetryDelayInitial time.Duration `json:"retryDelayInitial" mapstructure:"retry-delay-initial" validate:"gte=0"`
	RetryDelayMax     time.Duration `json:"retryDelayMax" mapstructure:"retry-delay-max" validate:"gte=0"`
	// ScanBudget is the maximum number of examined cells per scanner invocation.
	ScanBudget int `json:"scanBudget" mapstructure:"scan-budget" validate:"gte=1"`
	// PoolWidth is the executor concurrency, a batch of this size is fully awaited
	// before the next tasks are pulled.
	PoolWidth int `json:"poolWidth" mapstructure:"pool-width" validate:"gte=1"`
	// StaleReadRetries bounds re-reads on an ambiguous grid response,
	// afterwards the cell is treated as claimed by someone else.
	StaleReadRetries int `json:"staleReadRetries" mapstructure:"stale-read-retries" validate:"gte=0"`
	// RescanDelay paces drain passes that made no progress, a pass of claim
	// conflicts only, or a truncated scan without a claimable task, waits this long.
	RescanDelay time.Duration `json:"rescanDelay" mapstructure:"rescan-delay" validate:"gte=0"`

	// DefaultMaxWait is the execution abandonment timeout,
	// MaxWaitByType overrides it per worker type.
	DefaultMaxWait time.Duration            `json:"defaultMaxWait" mapstructure:"default-max-wait" validate:"required"`
	MaxWaitByType  map[string]time.Duration `json:"maxWaitByType,omitempty" mapstructure:"max-wait-by-type"`

	// DefaultWorkerType is used when the type row does not name one.
	DefaultWorkerType string `json:"defaultWorkerType" mapstructure:"default-worker-type" validate:"required"`

	// TransitionHistoryLimit bounds the retained transition records.
	TransitionHistoryLimit int `json:"transitionHistoryLimit" mapstructure:"transition-history-limit" validate:"gte=1"`
	// GroupStateLogLimit bounds the group state change log.
	GroupStateLogLimit int `json:"groupStateLogLimit" mapstructure:"group-state-log-limit" validate:"gte=1"`

	// ProbeSchedule is a cron expression of the opportunistic scheduler probe,
	// empty value disables the prober.
	ProbeSchedule string `json:"probeSchedule,omitempty" mapstructure:"probe-schedule"`
}

type GridConfig struct {
	// URL of the grid cell API, empty value selects the in-memory grid.
	URL   string `json:"url,omitempty" mapstructure:"url"`
	Token string `json:"token,omitempty" mapstructure:"token"`
	// StateCell holds the shared GroupState value.
	StateCell string `json:"stateCell" mapstructure:"state-cell" validate:"required"`
	// HistoryCell holds the shared transition record history.
	HistoryCell string `json:"historyCell" mapstructure:"history-cell" validate:"required"`
}

type LayoutConfig struct {
	// HeaderRow is scanned left-to-right for group structure, missing header is fatal.
	HeaderRow int `json:"headerRow" mapstructure:"header-row" validate:"gte=1"`
	// TypeRow carries the fan-out indicator and worker types, and the column directives.
	TypeRow int `json:"typeRow" mapstructure:"type-row" validate:"gte=1"`
	// DataStartRow is the first task row.
	DataStartRow int `json:"dataStartRow" mapstructure:"data-start-row" validate:"gte=1"`
	// DirectiveColumn carries the row directives, 0-based index.
	DirectiveColumn int `json:"directiveColumn" mapstructure:"directive-column" validate:"gte=0"`
}

// TokenConfig is the control vocabulary, every token is an externally configurable string.
type TokenConfig struct {
	GroupStart   string `json:"groupStart" mapstructure:"group-start" validate:"required"`
	PromptPrefix string `json:"promptPrefix" mapstructure:"prompt-prefix" validate:"required"`
	Answer       string `json:"answer" mapstructure:"answer" validate:"required"`
	Derived      string `json:"derived" mapstructure:"derived" validate:"required"`
	// FanOutPrefix marks a multi-column answer block in the type row,
	// e.g. "x3:alpha,beta,gamma" declares 3 answer columns with competing worker types.
	FanOutPrefix string `json:"fanOutPrefix" mapstructure:"fan-out-prefix" validate:"required"`

	RowOnly  string `json:"rowOnly" mapstructure:"row-only" validate:"required"`
	RowFrom  string `json:"rowFrom" mapstructure:"row-from" validate:"required"`
	RowUntil string `json:"rowUntil" mapstructure:"row-until" validate:"required"`
	ColOnly  string `json:"colOnly" mapstructure:"col-only" validate:"required"`
	ColFrom  string `json:"colFrom" mapstructure:"col-from" validate:"required"`
	ColUntil string `json:"colUntil" mapstructure:"col-until" validate:"required"`
}

func DefaultConfig() Config {
	return Config{
		Grid: GridConfig{
			StateCell:   "ZA1",
			HistoryCell: "ZA2",
		},
		Layout: LayoutConfig{
			HeaderRow:       1,
			TypeRow:         2,
			DataStartRow:    3,
			DirectiveColumn: 0,
		},
		Tokens: TokenConfig{
			GroupStart:   "log",
			PromptPrefix: "prompt",
			Answer:       "answer",
			Derived:      "report",
			FanOutPrefix: "x",
			RowOnly:      "only",
			RowFrom:      "from",
			RowUntil:     "until",
			ColOnly:      "only",
			ColFrom:      "from",
			ColUntil:     "until",
		},
		ClaimTTL:               15 * time.Minute,
		CacheTTL:               30 * time.Second,
		RetryCeiling:           2,
		RetryDelayInitial:      2 * time.Second,
		RetryDelayMax:          2 * time.Minute,
		ScanBudget:             5000,
		PoolWidth:              3,
		StaleReadRetries:       3,
		RescanDelay:            2 * time.Second,
		DefaultMaxWait:         40 * time.Minute,
		DefaultWorkerType:      "default",
		TransitionHistoryLimit: 100,
		GroupStateLogLimit:     50,
		ProbeSchedule:          "@every 30s",
	}
}

func (c Config) Validate(ctx context.Context) error {
	return validator.ValidateCtx(ctx, c, "dive", "")
}

// MaxWait returns the abandonment timeout for the worker type.
func (c Config) MaxWait(workerType string) time.Duration {
	if v, found := c.MaxWaitByType[workerType]; found {
		return v
	}
	return c.DefaultMaxWait
}
