package router

import (
	"github.com/clduab11/pricehawk/internal/domain"
)

// Pool is a policy-scoped, stably-ordered slice of model ids. Stable order
// matters: selection walks the pool accumulating effective weight, and
// ties between equal cumulative weights are broken by table order.
type Pool []string

// partitionPools splits the enabled model table into standard (free) and
// SOTA (paid/premium) pools, each further restricted to a tool-capable
// subset, preserving the table's declared order.
func partitionPools(models []domain.ModelConfig) (standard, sota, standardTools, sotaTools Pool) {
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		if m.IsFree {
			standard = append(standard, m.ID)
			if m.SupportsTools {
				standardTools = append(standardTools, m.ID)
			}
		} else {
			sota = append(sota, m.ID)
			if m.SupportsTools {
				sotaTools = append(sotaTools, m.ID)
			}
		}
	}
	return
}
