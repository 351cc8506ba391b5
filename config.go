package dealflow

import "time"

// Config holds configuration for the whole engine. Field tags follow the
// YAML layout read by config.Load.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Documents  DocumentsConfig  `mapstructure:"documents"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	NDA        NDAConfig        `mapstructure:"nda"`
	Investment InvestmentConfig `mapstructure:"investment"`
	Production ProductionConfig `mapstructure:"production"`
}

// DatabaseConfig selects the relational store. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig configures the status cache. An empty Addr disables Redis
// and an in-process cache is used instead.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// HTTPConfig configures the operator HTTP surface.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RuntimeConfig tunes the durable step runtime.
type RuntimeConfig struct {
	// LeaseTTL bounds how long one process may own a running instance
	// before another process is allowed to take it over.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`

	// SweepSchedule is the cron expression for waking due instances.
	SweepSchedule string `mapstructure:"sweep_schedule"`

	// SweepConcurrency caps how many instances one sweep drives at once.
	SweepConcurrency int `mapstructure:"sweep_concurrency"`

	// SweepBatch caps how many due instances one sweep loads.
	SweepBatch int `mapstructure:"sweep_batch"`

	// Codec names the checkpoint codec: "json" or "msgpack".
	Codec string `mapstructure:"codec"`

	// StepTimeout is the default deadline for a single step attempt.
	// Zero disables it.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// DocumentsConfig configures the document store. An empty Root keeps
// documents in memory.
type DocumentsConfig struct {
	Root string `mapstructure:"root"`
}

// NotifyConfig configures the notification sink.
type NotifyConfig struct {
	// RatePerRecipient is the sustained notifications per second allowed
	// for one recipient. Zero disables throttling.
	RatePerRecipient float64 `mapstructure:"rate_per_recipient"`
	Burst            int     `mapstructure:"burst"`

	// LegalTeamID is the recipient for legal-review requests.
	LegalTeamID string `mapstructure:"legal_team_id"`
}

// NDAConfig holds the NDA workflow wait windows.
type NDAConfig struct {
	CreatorReviewTimeout time.Duration `mapstructure:"creator_review_timeout"`
	LegalReviewTimeout   time.Duration `mapstructure:"legal_review_timeout"`
	SignatureTimeout     time.Duration `mapstructure:"signature_timeout"`
	ViewedTimeout        time.Duration `mapstructure:"viewed_timeout"`
	ExpiryReminderLead   time.Duration `mapstructure:"expiry_reminder_lead"`
}

// InvestmentConfig holds the investment workflow wait windows.
type InvestmentConfig struct {
	CreatorApprovalTimeout time.Duration `mapstructure:"creator_approval_timeout"`
	TermSheetTimeout       time.Duration `mapstructure:"term_sheet_timeout"`
	PaymentTimeout         time.Duration `mapstructure:"payment_timeout"`
}

// ProductionConfig holds the production workflow wait windows.
type ProductionConfig struct {
	CreatorResponseTimeout  time.Duration `mapstructure:"creator_response_timeout"`
	MeetingTimeout          time.Duration `mapstructure:"meeting_timeout"`
	ProposalTimeout         time.Duration `mapstructure:"proposal_timeout"`
	ProposalResponseTimeout time.Duration `mapstructure:"proposal_response_timeout"`
	CounterResponseTimeout  time.Duration `mapstructure:"counter_response_timeout"`
	ContractTimeout         time.Duration `mapstructure:"contract_timeout"`
	MaxCounterRounds        int           `mapstructure:"max_counter_rounds"`
}

const day = 24 * time.Hour

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			StatusTTL: 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Runtime: RuntimeConfig{
			LeaseTTL:         5 * time.Minute,
			SweepSchedule:    "@every 1s",
			SweepConcurrency: 16,
			SweepBatch:       256,
			Codec:            "json",
			StepTimeout:      30 * time.Second,
		},
		Notify: NotifyConfig{
			RatePerRecipient: 5,
			Burst:            10,
			LegalTeamID:      "legal-team",
		},
		NDA:        DefaultNDAConfig(),
		Investment: DefaultInvestmentConfig(),
		Production: DefaultProductionConfig(),
	}
}

// DefaultNDAConfig returns the standard NDA wait windows.
func DefaultNDAConfig() NDAConfig {
	return NDAConfig{
		CreatorReviewTimeout: 72 * time.Hour,
		LegalReviewTimeout:   48 * time.Hour,
		SignatureTimeout:     7 * day,
		ViewedTimeout:        5 * day,
		ExpiryReminderLead:   30 * day,
	}
}

// DefaultInvestmentConfig returns the standard investment wait windows.
func DefaultInvestmentConfig() InvestmentConfig {
	return InvestmentConfig{
		CreatorApprovalTimeout: 7 * day,
		TermSheetTimeout:       7 * day,
		PaymentTimeout:         2 * day,
	}
}

// DefaultProductionConfig returns the standard production wait windows.
func DefaultProductionConfig() ProductionConfig {
	return ProductionConfig{
		CreatorResponseTimeout:  7 * day,
		MeetingTimeout:          30 * day,
		ProposalTimeout:         30 * day,
		ProposalResponseTimeout: 3 * day,
		CounterResponseTimeout:  3 * day,
		ContractTimeout:         14 * day,
		MaxCounterRounds:        3,
	}
}
