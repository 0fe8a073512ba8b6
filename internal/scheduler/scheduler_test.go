package scheduler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/config"
	"github.com/clearcomply/remediation-engine/internal/eventbus"
	"github.com/clearcomply/remediation-engine/internal/metrics"
	"github.com/clearcomply/remediation-engine/internal/notification"
	"github.com/clearcomply/remediation-engine/internal/registry"
	"github.com/clearcomply/remediation-engine/internal/workflow"
)

func newTestScheduler(t *testing.T, sweepSchedule string) *Scheduler {
	t.Helper()

	logger := zap.NewNop()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	bus := eventbus.NewBus(logger)
	chains := registry.NewApprovalChainRegistry(logger)
	rules := registry.NewEscalationRuleRegistry(logger)
	triggers := registry.NewNotificationTriggerRegistry(logger)
	dispatcher := notification.NewDispatcher(triggers, bus, collector, logger)

	engine, err := workflow.NewEngine(chains, rules, dispatcher, bus, collector, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		Workflow: config.WorkflowConfig{
			EscalationSweepSchedule: sweepSchedule,
			MetricsRefreshSchedule:  "*/30 * * * * *",
		},
	}
	return NewScheduler(cfg, engine, collector, logger)
}

func TestSchedulerTasks(t *testing.T) {
	s := newTestScheduler(t, "0 * * * * *")

	tasks := s.Tasks()
	require.Len(t, tasks, 2)

	byID := make(map[string]Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}

	sweep, ok := byID["escalation_sweep"]
	require.True(t, ok)
	assert.Equal(t, "0 * * * * *", sweep.Schedule)
	assert.Equal(t, int64(0), sweep.RunCount)

	_, ok = byID["metrics_refresh"]
	assert.True(t, ok)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler(t, "0 * * * * *")
	require.NoError(t, s.Start())
	s.Stop()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler(t, "not a cron expression")
	assert.Error(t, s.Start())
}

func TestRunSweepNow(t *testing.T) {
	s := newTestScheduler(t, "0 * * * * *")

	result := s.RunSweepNow()
	assert.Equal(t, 0, result.Checked)
	assert.Equal(t, 0, result.Applied)
}
