package config

import (
	"strings"
	"time"
)

// SettlementConfig controls fee calculation, billing units and ledger transaction retries.
// Exactly one fee source applies, in order: FeeScheduleFile, FeeExpression, then the
// basis-point rate with its floor.
type SettlementConfig struct {
	// FeeBasisPoints is the platform fee as 1/100 of a percent of the gross amount.
	FeeBasisPoints int64 `env:"FEE_BPS" envDefault:"1000"`
	// MinFeeCents is the fee floor. The fee never exceeds the amount itself.
	MinFeeCents int64 `env:"MIN_FEE_CENTS" envDefault:"0"`
	// FeeExpression is a CEL expression over `amount` (int cents) returning the fee in cents.
	FeeExpression string `env:"FEE_EXPRESSION"`
	// FeeScheduleFile is a YAML file of amount tiers, see service.LoadFeeSchedule.
	FeeScheduleFile string `env:"FEE_SCHEDULE_FILE"`

	// MinBillable is the shortest time interval a worker can stop.
	MinBillable time.Duration `env:"MIN_BILLABLE" envDefault:"1m"`

	// TxAttempts bounds re-runs of a ledger transaction after a serialization failure.
	TxAttempts int           `env:"TX_ATTEMPTS" envDefault:"3"`
	TxBackoff  time.Duration `env:"TX_BACKOFF"  envDefault:"10ms"`

	// PaymentMaxRetries is the outbox retry budget for one gateway submission.
	PaymentMaxRetries int `env:"PAYMENT_MAX_RETRIES" envDefault:"5"`
}

// Sanitize applies guardrails to settlement configuration values.
func (c *SettlementConfig) Sanitize() {
	c.FeeExpression = strings.TrimSpace(c.FeeExpression)
	c.FeeScheduleFile = strings.TrimSpace(c.FeeScheduleFile)
	if c.FeeBasisPoints < 0 {
		c.FeeBasisPoints = 0
	}
	if c.FeeBasisPoints > 10000 {
		c.FeeBasisPoints = 10000
	}
	if c.MinFeeCents < 0 {
		c.MinFeeCents = 0
	}
	if c.MinBillable < time.Second {
		c.MinBillable = time.Minute
	}
	if c.TxAttempts < 1 {
		c.TxAttempts = 1
	}
	if c.TxAttempts > 10 {
		c.TxAttempts = 10
	}
	if c.TxBackoff <= 0 {
		c.TxBackoff = 10 * time.Millisecond
	}
	if c.PaymentMaxRetries < 1 {
		c.PaymentMaxRetries = 1
	}
}
