package service

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/domain/model"
)

// FeePolicy computes the platform fee for a gross payment amount.
type FeePolicy interface {
	Fee(amount model.Cents) (model.Cents, error)
}

// FeePolicyFunc adapts a function to FeePolicy.
type FeePolicyFunc func(amount model.Cents) (model.Cents, error)

// Fee implements FeePolicy.
func (f FeePolicyFunc) Fee(amount model.Cents) (model.Cents, error) { return f(amount) }

// ErrFeeOutOfRange is returned when a policy yields a fee outside [0, amount].
var ErrFeeOutOfRange = errors.New("fee out of range")

// NewFeePolicy builds the policy selected by cfg: a schedule file, a CEL
// expression, or a basis-point rate with a floor.
func NewFeePolicy(cfg config.SettlementConfig) (FeePolicy, error) {
	switch {
	case cfg.FeeScheduleFile != "":
		return LoadFeeSchedule(cfg.FeeScheduleFile)
	case cfg.FeeExpression != "":
		return NewCELFee(cfg.FeeExpression)
	default:
		return BasisPointsFee{BPS: cfg.FeeBasisPoints, Min: model.Cents(cfg.MinFeeCents)}, nil
	}
}

// checkedFee runs policy and enforces 0 <= fee <= amount.
func checkedFee(policy FeePolicy, amount model.Cents) (model.Cents, error) {
	fee, err := policy.Fee(amount)
	if err != nil {
		return 0, fmt.Errorf("compute fee: %w", err)
	}
	if fee < 0 || fee > amount {
		return 0, fmt.Errorf("%w: fee %s for amount %s", ErrFeeOutOfRange, fee, amount)
	}
	return fee, nil
}

// BasisPointsFee charges BPS/10000 of the amount, rounded half up, but never less
// than Min nor more than the amount.
type BasisPointsFee struct {
	BPS int64
	Min model.Cents
}

// Fee implements FeePolicy.
func (b BasisPointsFee) Fee(amount model.Cents) (model.Cents, error) {
	if amount <= 0 {
		return 0, nil
	}
	fee := model.Cents((int64(amount)*b.BPS + 5000) / 10000)
	if fee < b.Min {
		fee = b.Min
	}
	if fee > amount {
		fee = amount
	}
	return fee, nil
}

// CELFee evaluates a CEL expression with the int variable `amount` bound to the
// gross amount in cents, e.g. `amount < 10000 ? 100 : amount / 20`.
type CELFee struct {
	expr string
	prg  cel.Program
}

// NewCELFee compiles expr. The expression must return an int.
func NewCELFee(expr string) (*CELFee, error) {
	env, err := cel.NewEnv(cel.Variable("amount", cel.IntType))
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile fee expression: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.IntType) {
		return nil, fmt.Errorf("fee expression must return int, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build fee program: %w", err)
	}
	return &CELFee{expr: expr, prg: prg}, nil
}

// Fee implements FeePolicy.
func (c *CELFee) Fee(amount model.Cents) (model.Cents, error) {
	out, _, err := c.prg.Eval(map[string]any{"amount": int64(amount)})
	if err != nil {
		return 0, fmt.Errorf("evaluate fee expression %q: %w", c.expr, err)
	}
	v, ok := out.Value().(int64)
	if !ok {
		return 0, fmt.Errorf("fee expression returned %T", out.Value())
	}
	return model.Cents(v), nil
}

// FeeTier applies to amounts up to and including UpTo cents. A tier without UpTo
// covers everything above the previous tier.
type FeeTier struct {
	UpTo      *int64 `yaml:"up_to"`
	BPS       int64  `yaml:"bps"`
	FlatCents int64  `yaml:"flat_cents"`
}

// FeeSchedule is a tiered fee table loaded from YAML:
//
//	min_fee_cents: 50
//	tiers:
//	  - up_to: 50000
//	    bps: 1000
//	  - bps: 500
//	    flat_cents: 200
type FeeSchedule struct {
	MinFeeCents int64     `yaml:"min_fee_cents"`
	Tiers       []FeeTier `yaml:"tiers"`
}

// LoadFeeSchedule reads and validates a schedule file.
func LoadFeeSchedule(path string) (*FeeSchedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fee schedule: %w", err)
	}
	return ParseFeeSchedule(raw)
}

// ParseFeeSchedule decodes a YAML schedule and sorts its tiers.
func ParseFeeSchedule(raw []byte) (*FeeSchedule, error) {
	var s FeeSchedule
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode fee schedule: %w", err)
	}
	if len(s.Tiers) == 0 {
		return nil, errors.New("fee schedule has no tiers")
	}
	open := 0
	for i, t := range s.Tiers {
		if t.BPS < 0 || t.BPS > 10000 || t.FlatCents < 0 {
			return nil, fmt.Errorf("fee tier %d: bps must be 0..10000 and flat_cents non-negative", i)
		}
		if t.UpTo == nil {
			open++
		}
	}
	if open > 1 {
		return nil, errors.New("fee schedule may have at most one tier without up_to")
	}
	sort.SliceStable(s.Tiers, func(i, j int) bool {
		a, b := s.Tiers[i].UpTo, s.Tiers[j].UpTo
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	return &s, nil
}

// Fee implements FeePolicy.
func (s *FeeSchedule) Fee(amount model.Cents) (model.Cents, error) {
	if amount <= 0 {
		return 0, nil
	}
	for _, t := range s.Tiers {
		if t.UpTo != nil && int64(amount) > *t.UpTo {
			continue
		}
		fee := BasisPointsFee{BPS: t.BPS, Min: model.Cents(s.MinFeeCents)}
		v, _ := fee.Fee(amount)
		v += model.Cents(t.FlatCents)
		if v > amount {
			v = amount
		}
		return v, nil
	}
	return 0, fmt.Errorf("no fee tier covers amount %s", amount)
}
