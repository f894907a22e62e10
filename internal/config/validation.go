package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Progression.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.MinConfidence <= 0 || t.MinConfidence >= 1 {
		return fmt.Errorf("trading.min_confidence must be in (0,1)")
	}
	if t.ExplorationRate < 0 || t.ExplorationRate >= 1 {
		return fmt.Errorf("trading.exploration_rate must be in [0,1)")
	}
	if t.FullTrustTrades < t.MinTrustTrades {
		return fmt.Errorf("trading.full_trust_trades must be >= trading.min_trust_trades")
	}
	if t.TierHighPct > t.TierMediumPct || t.TierMediumPct > t.TierLowPct {
		return fmt.Errorf("trading tier percentages must satisfy high <= medium <= low")
	}
	return nil
}

func (p *ProgressionConfig) validate() error {
	if len(p.Levels) == 0 {
		return fmt.Errorf("progression.levels requires at least one level")
	}
	prevMilestone := 0.0
	for i, lv := range p.Levels {
		if lv.Level != i+1 {
			return fmt.Errorf("progression.levels must be contiguous from 1 (got level=%d at index %d)", lv.Level, i)
		}
		if lv.MilestoneUSD <= prevMilestone {
			return fmt.Errorf("progression.levels milestones must be strictly increasing (level=%d)", lv.Level)
		}
		if len(lv.Unlocked) == 0 {
			return fmt.Errorf("progression.levels.%d has empty unlocked set", lv.Level)
		}
		prevMilestone = lv.MilestoneUSD
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}
