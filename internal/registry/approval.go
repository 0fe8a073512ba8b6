package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/model"
)

// ApprovalChainRegistry holds named, ordered approval chain templates. It is
// populated with defaults at construction and extended at runtime through
// explicit Register calls.
type ApprovalChainRegistry struct {
	logger *zap.Logger
	chains map[string]*model.ApprovalChain
	mu     sync.RWMutex
}

// NewApprovalChainRegistry creates a registry pre-loaded with the default
// critical/high/standard chains.
func NewApprovalChainRegistry(logger *zap.Logger) *ApprovalChainRegistry {
	r := &ApprovalChainRegistry{
		logger: logger,
		chains: make(map[string]*model.ApprovalChain),
	}

	for _, chain := range defaultApprovalChains() {
		r.chains[chain.ID] = chain
	}

	logger.Info("Approval chains loaded", zap.Int("count", len(r.chains)))
	return r
}

// Register adds or replaces an approval chain.
func (r *ApprovalChainRegistry) Register(chain *model.ApprovalChain) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[chain.ID] = chain
	r.logger.Info("Approval chain registered",
		zap.String("chain_id", chain.ID),
		zap.Int("levels", len(chain.Steps)),
	)
}

// Get returns the chain with the given ID, or nil if unknown.
func (r *ApprovalChainRegistry) Get(id string) *model.ApprovalChain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chains[id]
}

// List returns all registered chains.
func (r *ApprovalChainRegistry) List() []*model.ApprovalChain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chains := make([]*model.ApprovalChain, 0, len(r.chains))
	for _, chain := range r.chains {
		chains = append(chains, chain)
	}
	return chains
}

func defaultApprovalChains() []*model.ApprovalChain {
	return []*model.ApprovalChain{
		{
			ID:   "critical-3-level",
			Name: "Critical Violations - 3 Level Approval",
			Steps: []model.ApprovalChainStep{
				{Level: 1, ApproverRole: "supervisor", RequiredApprovals: 1, TimeoutHours: 24},
				{Level: 2, ApproverRole: "manager", RequiredApprovals: 1, TimeoutHours: 48},
				{Level: 3, ApproverRole: "director", RequiredApprovals: 1, TimeoutHours: 72},
			},
		},
		{
			ID:   "high-2-level",
			Name: "High Violations - 2 Level Approval",
			Steps: []model.ApprovalChainStep{
				{Level: 1, ApproverRole: "supervisor", RequiredApprovals: 1, TimeoutHours: 48},
				{Level: 2, ApproverRole: "manager", RequiredApprovals: 1, TimeoutHours: 96},
			},
		},
		{
			ID:   "standard",
			Name: "Standard Single Approval",
			Steps: []model.ApprovalChainStep{
				{Level: 1, ApproverRole: "supervisor", RequiredApprovals: 1, TimeoutHours: 120},
			},
		},
	}
}
