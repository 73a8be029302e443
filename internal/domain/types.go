// Package domain holds the value types shared across the event pipeline,
// router, validator, and dispatcher. Entities are captured by value at
// emission time; downstream consumers never re-resolve a cyclic reference
// back to the producer that created them.
package domain

import (
	"sort"
	"time"
)

// StockStatus describes product availability at detection time.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockUnknown    StockStatus = "unknown"
)

// AnomalyType classifies how a PricingAnomaly was first flagged.
type AnomalyType string

const (
	AnomalyZScore          AnomalyType = "z_score"
	AnomalyPercentageDrop  AnomalyType = "percentage_drop"
	AnomalyDecimalError    AnomalyType = "decimal_error"
	AnomalyHistorical      AnomalyType = "historical"
)

// AnomalyStatus tracks an anomaly's monotonic lifecycle: pending advances to
// exactly one of validated or rejected, and validated may further advance to
// notified. Statuses never move backward.
type AnomalyStatus string

const (
	StatusPending   AnomalyStatus = "pending"
	StatusValidated AnomalyStatus = "validated"
	StatusRejected  AnomalyStatus = "rejected"
	StatusNotified  AnomalyStatus = "notified"
)

// GlitchType classifies why a validated pricing error occurred.
type GlitchType string

const (
	GlitchDecimalError  GlitchType = "decimal_error"
	GlitchDatabaseError GlitchType = "database_error"
	GlitchClearance     GlitchType = "clearance"
	GlitchCouponStack   GlitchType = "coupon_stack"
	GlitchUnknown       GlitchType = "unknown"
)

// ModelTier groups endpoints by cost/capability band.
type ModelTier string

const (
	TierHigh ModelTier = "high"
	TierMid  ModelTier = "mid"
	TierBase ModelTier = "base"
)

// SubscriberTier determines notification delay and permitted channels.
type SubscriberTier string

const (
	SubFree    SubscriberTier = "free"
	SubStarter SubscriberTier = "starter"
	SubPro     SubscriberTier = "pro"
	SubElite   SubscriberTier = "elite"
)

// Channel names a notification delivery mechanism.
type Channel string

const (
	ChannelEmail       Channel = "email"
	ChannelChat        Channel = "chat"
	ChannelSMS         Channel = "sms"
	ChannelIM          Channel = "im"
	ChannelRichMessage Channel = "rich_message"
	ChannelWebhook     Channel = "webhook"
	ChannelPriority    Channel = "priority"
)

// ProductSnapshot captures the product state observed at detection time.
// It is copied by value into every downstream entity; nothing re-resolves
// it against the live catalog.
type ProductSnapshot struct {
	Title         string      `json:"title"`
	CurrentPrice  float64     `json:"current_price"`
	OriginalPrice *float64    `json:"original_price,omitempty"`
	Stock         StockStatus `json:"stock_status"`
	RetailerID    string      `json:"retailer_id"`
	URL           string      `json:"url"`
	Category      string      `json:"category"`
}

// PricingAnomaly is a statistically flagged candidate price, pre-validation.
type PricingAnomaly struct {
	ID                 string           `json:"id"`
	Product            ProductSnapshot  `json:"product"`
	AnomalyType        AnomalyType      `json:"anomaly_type"`
	ZScore             *float64         `json:"z_score,omitempty"`
	DiscountPercentage *float64         `json:"discount_percentage,omitempty"`
	InitialConfidence  float64          `json:"initial_confidence"`
	DetectedAt         time.Time        `json:"detected_at"`
	Status             AnomalyStatus    `json:"status"`
}

// ValidatedGlitch is a pricing error the AI Validator confirmed.
type ValidatedGlitch struct {
	ID           string          `json:"id"`
	AnomalyID    string          `json:"anomaly_id"`
	Product      ProductSnapshot `json:"product"`
	IsGlitch     bool            `json:"is_glitch"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	GlitchType   GlitchType      `json:"glitch_type"`
	ProfitMargin float64         `json:"profit_margin"`
	ValidatedAt  time.Time       `json:"validated_at"`
}

// ModelConfig is an immutable description of one LLM endpoint, loaded once
// at startup from a static table plus environment toggles.
type ModelConfig struct {
	ID             string
	Name           string
	Provider       string
	BaseWeight     int
	ContextWindow  int
	Tier           ModelTier
	Capabilities   map[string]struct{}
	SupportsTools  bool
	IsFree         bool
	TimeoutMS      int
	Enabled        bool
}

// Timeout returns the model's configured deadline as a time.Duration.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// ModelPerformance is the mutable, per-model running tally the router
// updates after every outcome report.
type ModelPerformance struct {
	Success             int64
	Failure             int64
	ToolSuccess         int64
	ToolFailure         int64
	TotalLatencyMS       int64
	LastUsed            time.Time
	ConsecutiveFailures int
}

// CircuitState is the breaker state for one model.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerState tracks the sliding-window breaker for one model.
type CircuitBreakerState struct {
	State           CircuitState
	OpenedAt        time.Time
	ErrorTimestamps []time.Time
}

// UnicornContext is the set of signals used to decide whether a request
// warrants premium-pool escalation.
type UnicornContext struct {
	Discount   float64
	Confidence float64
	ZScore     *float64
}

// DispatchJob is one per-tier fan-out job scheduled on the Delay Queue.
type DispatchJob struct {
	GlitchID     string
	TargetTiers  []SubscriberTier
	ScheduledAt  time.Time
}

// UniqueID returns the Delay Queue dedup key for this job: identical
// glitch+tier-set combinations collapse to the same job.
func (j DispatchJob) UniqueID() string {
	tiers := make([]string, len(j.TargetTiers))
	for i, t := range j.TargetTiers {
		tiers[i] = string(t)
	}
	sort.Strings(tiers)
	s := "notify-" + j.GlitchID + "-"
	for i, t := range tiers {
		if i > 0 {
			s += ","
		}
		s += t
	}
	return s
}

// SubscriberPrefs is a user's notification preferences.
type SubscriberPrefs struct {
	MinProfitMargin float64
	Categories      []string
	Retailers       []string
	MinPrice        float64
	MaxPrice        float64
	EnabledChannels map[Channel]bool
}

// Subscriber is an active notification target.
type Subscriber struct {
	ID    string
	Tier  SubscriberTier
	Prefs SubscriberPrefs
}

// ChannelResult is what a Channel Provider returns after attempting a send.
type ChannelResult struct {
	Success   bool
	Channel   Channel
	MessageID string
	Err       error
	SentAt    time.Time
}
