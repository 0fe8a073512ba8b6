// Package analytics computes trend series, heatmaps, risk scores and anomaly
// flags over caller-supplied violation snapshots. Every operation is a pure
// function of its inputs: the engine holds tunable policy, never data, so
// calls are safe to run concurrently across requests and tenants.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/model"
)

// Weights is the severity weighting policy used for department and user risk
// scores. Weights must be monotonic: critical >= high >= medium >= low.
type Weights struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
	Low      float64 `mapstructure:"low"`
}

// DefaultWeights is the shipped severity weighting.
var DefaultWeights = Weights{Critical: 10, High: 5, Medium: 2, Low: 1}

const (
	// DefaultTrendThreshold is the relative change beyond which a department
	// trend is reported as increasing or decreasing.
	DefaultTrendThreshold = 0.10

	// DefaultAnomalyStdDevs is the spike detection threshold in standard
	// deviations, used when the caller passes a non-positive threshold.
	DefaultAnomalyStdDevs = 2.0
)

// Options tunes the scoring policy.
type Options struct {
	Weights        Weights
	TrendThreshold float64
	AnomalyStdDevs float64
}

// Engine is the risk analytics engine. Stateless beyond its policy knobs.
type Engine struct {
	logger         *zap.Logger
	weights        Weights
	trendThreshold float64
	anomalyStdDevs float64
	now            func() time.Time
}

// NewEngine creates an analytics engine, filling unset options with defaults.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	weights := opts.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	trendThreshold := opts.TrendThreshold
	if trendThreshold <= 0 {
		trendThreshold = DefaultTrendThreshold
	}
	anomalyStdDevs := opts.AnomalyStdDevs
	if anomalyStdDevs <= 0 {
		anomalyStdDevs = DefaultAnomalyStdDevs
	}

	return &Engine{
		logger:         logger,
		weights:        weights,
		trendThreshold: trendThreshold,
		anomalyStdDevs: anomalyStdDevs,
		now:            time.Now,
	}
}

func (e *Engine) weightFor(level model.RiskLevel) float64 {
	switch level {
	case model.RiskCritical:
		return e.weights.Critical
	case model.RiskHigh:
		return e.weights.High
	case model.RiskMedium:
		return e.weights.Medium
	case model.RiskLow:
		return e.weights.Low
	default:
		return 0
	}
}

func intervalDuration(interval model.TrendInterval) time.Duration {
	switch interval {
	case model.IntervalWeek:
		return 7 * 24 * time.Hour
	case model.IntervalMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// AnalyzeTrends buckets violations by detection time into consecutive windows
// of the given interval ending at now. The series has no gaps: windows with
// zero violations still appear with all counts at 0.
func (e *Engine) AnalyzeTrends(violations []model.Violation, interval model.TrendInterval, periods int) []model.TrendPoint {
	if periods <= 0 {
		return []model.TrendPoint{}
	}

	width := intervalDuration(interval)
	now := e.now()
	seriesStart := now.Add(-time.Duration(periods) * width)

	points := make([]model.TrendPoint, periods)
	for i := range points {
		points[i].Timestamp = seriesStart.Add(time.Duration(i) * width)
	}

	for _, v := range violations {
		if v.DetectedAt.Before(seriesStart) || !v.DetectedAt.Before(now) {
			continue
		}
		idx := int(v.DetectedAt.Sub(seriesStart) / width)
		if idx < 0 || idx >= periods {
			continue
		}

		points[idx].Count++
		switch v.RiskLevel {
		case model.RiskCritical:
			points[idx].CriticalCount++
		case model.RiskHigh:
			points[idx].HighCount++
		case model.RiskMedium:
			points[idx].MediumCount++
		case model.RiskLow:
			points[idx].LowCount++
		}
	}

	return points
}

var severityOrder = map[model.RiskLevel]int{
	model.RiskCritical: 0,
	model.RiskHigh:     1,
	model.RiskMedium:   2,
	model.RiskLow:      3,
}

// GenerateRiskHeatmap cross-tabulates department x risk level. Only present
// combinations produce a cell; the percentage is relative to the department's
// own violation total.
func (e *Engine) GenerateRiskHeatmap(violations []model.Violation) []model.HeatmapCell {
	type key struct {
		department string
		level      model.RiskLevel
	}

	counts := make(map[key]int)
	departmentTotals := make(map[string]int)
	for _, v := range violations {
		counts[key{v.Department, v.RiskLevel}]++
		departmentTotals[v.Department]++
	}

	cells := make([]model.HeatmapCell, 0, len(counts))
	for k, count := range counts {
		cells = append(cells, model.HeatmapCell{
			Department: k.department,
			RiskLevel:  k.level,
			Count:      count,
			Percentage: float64(count) / float64(departmentTotals[k.department]) * 100,
		})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Department != cells[j].Department {
			return cells[i].Department < cells[j].Department
		}
		return severityOrder[cells[i].RiskLevel] < severityOrder[cells[j].RiskLevel]
	})
	return cells
}

// CalculateDepartmentRisks groups violations by department and produces a
// severity-weighted risk score plus a trend direction against the previous
// period. Without a previous period every trend is stable.
func (e *Engine) CalculateDepartmentRisks(violations, previousViolations []model.Violation) []model.DepartmentRisk {
	byDepartment := make(map[string]*model.DepartmentRisk)
	for _, v := range violations {
		risk, ok := byDepartment[v.Department]
		if !ok {
			risk = &model.DepartmentRisk{Department: v.Department, Trend: model.TrendStable}
			byDepartment[v.Department] = risk
		}

		risk.Total++
		risk.RiskScore += e.weightFor(v.RiskLevel)
		switch v.RiskLevel {
		case model.RiskCritical:
			risk.CriticalCount++
		case model.RiskHigh:
			risk.HighCount++
		case model.RiskMedium:
			risk.MediumCount++
		case model.RiskLow:
			risk.LowCount++
		}
	}

	if previousViolations != nil {
		previousCounts := make(map[string]int)
		for _, v := range previousViolations {
			previousCounts[v.Department]++
		}

		for department, risk := range byDepartment {
			previous := previousCounts[department]
			switch {
			case previous == 0:
				if risk.Total > 0 {
					risk.Trend = model.TrendIncreasing
				}
			default:
				change := (float64(risk.Total) - float64(previous)) / float64(previous)
				switch {
				case change > e.trendThreshold:
					risk.Trend = model.TrendIncreasing
				case change < -e.trendThreshold:
					risk.Trend = model.TrendDecreasing
				default:
					risk.Trend = model.TrendStable
				}
			}
		}
	}

	risks := make([]model.DepartmentRisk, 0, len(byDepartment))
	for _, risk := range byDepartment {
		risks = append(risks, *risk)
	}
	sort.Slice(risks, func(i, j int) bool {
		if risks[i].RiskScore != risks[j].RiskScore {
			return risks[i].RiskScore > risks[j].RiskScore
		}
		return risks[i].Department < risks[j].Department
	})
	return risks
}

// CalculateComplianceScore computes the share of violations no longer open,
// overall and per department/risk-level partition, plus the user compliance
// rate. An empty violation set scores a clean 100.
func (e *Engine) CalculateComplianceScore(violations []model.Violation, totalUsers int) model.ComplianceScore {
	score := model.ComplianceScore{
		Overall:      100,
		ByDepartment: make(map[string]float64),
		ByRiskLevel:  make(map[string]float64),
	}

	type partition struct{ total, open int }
	departments := make(map[string]*partition)
	levels := make(map[string]*partition)
	users := make(map[string]bool)

	for _, v := range violations {
		score.TotalViolations++
		open := v.Open()
		if open {
			score.OpenViolations++
		}
		if v.UserID != "" {
			users[v.UserID] = true
		}

		d, ok := departments[v.Department]
		if !ok {
			d = &partition{}
			departments[v.Department] = d
		}
		l, ok := levels[string(v.RiskLevel)]
		if !ok {
			l = &partition{}
			levels[string(v.RiskLevel)] = l
		}
		d.total++
		l.total++
		if open {
			d.open++
			l.open++
		}
	}

	if score.TotalViolations > 0 {
		score.Overall = 100 * (1 - float64(score.OpenViolations)/float64(score.TotalViolations))
	}
	for department, p := range departments {
		score.ByDepartment[department] = 100 * (1 - float64(p.open)/float64(p.total))
	}
	for level, p := range levels {
		score.ByRiskLevel[level] = 100 * (1 - float64(p.open)/float64(p.total))
	}

	score.UsersWithViolations = len(users)
	if totalUsers > 0 {
		score.ComplianceRate = float64(totalUsers-score.UsersWithViolations) / float64(totalUsers)
	}

	return score
}

// GenerateUserRiskProfiles builds one profile per distinct user, scored with
// the same severity weighting as department risks. The ranking is dense and
// deterministic: sorted by score descending, ties broken by user ID.
func (e *Engine) GenerateUserRiskProfiles(violations []model.Violation) []model.UserRiskProfile {
	byUser := make(map[string]*model.UserRiskProfile)
	latest := make(map[string]time.Time)

	for _, v := range violations {
		if v.UserID == "" {
			continue
		}
		profile, ok := byUser[v.UserID]
		if !ok {
			profile = &model.UserRiskProfile{UserID: v.UserID}
			byUser[v.UserID] = profile
		}

		if v.DetectedAt.After(latest[v.UserID]) || profile.Department == "" {
			profile.Department = v.Department
			latest[v.UserID] = v.DetectedAt
		}

		profile.Total++
		profile.RiskScore += e.weightFor(v.RiskLevel)
		switch v.RiskLevel {
		case model.RiskCritical:
			profile.CriticalCount++
		case model.RiskHigh:
			profile.HighCount++
		case model.RiskMedium:
			profile.MediumCount++
		case model.RiskLow:
			profile.LowCount++
		}
	}

	profiles := make([]model.UserRiskProfile, 0, len(byUser))
	for _, profile := range byUser {
		profiles = append(profiles, *profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].RiskScore != profiles[j].RiskScore {
			return profiles[i].RiskScore > profiles[j].RiskScore
		}
		return profiles[i].UserID < profiles[j].UserID
	})
	for i := range profiles {
		profiles[i].RiskRanking = i + 1
	}
	return profiles
}

// DetectAnomalies compares the current violation set against a historical
// baseline and flags department spikes, departments with no prior
// occurrences, and detection signatures never seen before. A non-positive
// threshold falls back to the engine default.
func (e *Engine) DetectAnomalies(current, historical []model.Violation, threshold float64) []model.Anomaly {
	if threshold <= 0 {
		threshold = e.anomalyStdDevs
	}

	currentByDepartment := make(map[string]int)
	for _, v := range current {
		currentByDepartment[v.Department]++
	}
	historicalByDepartment := make(map[string]int)
	historicalSignatures := make(map[string]bool)
	for _, v := range historical {
		historicalByDepartment[v.Department]++
		historicalSignatures[signature(v)] = true
	}

	mean, stddev := meanStdDev(historicalByDepartment)

	anomalies := make([]model.Anomaly, 0)

	departments := make([]string, 0, len(currentByDepartment))
	for department := range currentByDepartment {
		departments = append(departments, department)
	}
	sort.Strings(departments)

	for _, department := range departments {
		count := currentByDepartment[department]
		_, known := historicalByDepartment[department]

		if !known {
			anomalies = append(anomalies, model.Anomaly{
				Type:        model.AnomalyNewDepartment,
				Description: fmt.Sprintf("department %q has violations for the first time", department),
				Severity:    "medium",
				Data: map[string]interface{}{
					"department": department,
					"count":      count,
				},
			})
			continue
		}

		if stddev > 0 && float64(count) > mean+threshold*stddev {
			anomalies = append(anomalies, model.Anomaly{
				Type: model.AnomalySpike,
				Description: fmt.Sprintf("department %q violation count %d exceeds baseline mean %.1f by more than %.1f standard deviations",
					department, count, mean, threshold),
				Severity: spikeSeverity(float64(count), mean, stddev, threshold),
				Data: map[string]interface{}{
					"department": department,
					"count":      count,
					"mean":       mean,
					"stddev":     stddev,
				},
			})
		}
	}

	seenSignatures := make(map[string]bool)
	for _, v := range current {
		sig := signature(v)
		if sig == "" || seenSignatures[sig] || historicalSignatures[sig] {
			continue
		}
		seenSignatures[sig] = true
		anomalies = append(anomalies, model.Anomaly{
			Type:        model.AnomalyNewPattern,
			Description: fmt.Sprintf("detection signature %q appeared for the first time", sig),
			Severity:    "medium",
			Data: map[string]interface{}{
				"signature":  sig,
				"department": v.Department,
			},
		})
	}

	return anomalies
}

// signature identifies the detection method/category of a violation.
func signature(v model.Violation) string {
	if v.Category != "" {
		return v.Category
	}
	return v.RuleID
}

// spikeSeverity grades a spike: beyond twice the threshold is high, then
// medium and low scale linearly down to the threshold itself.
func spikeSeverity(count, mean, stddev, threshold float64) string {
	excess := (count - mean) / stddev
	switch {
	case excess > 2*threshold:
		return "high"
	case excess > 1.5*threshold:
		return "medium"
	default:
		return "low"
	}
}

// meanStdDev computes the population mean and standard deviation of the
// per-department counts.
func meanStdDev(counts map[string]int) (float64, float64) {
	if len(counts) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, count := range counts {
		sum += float64(count)
	}
	mean := sum / float64(len(counts))

	variance := 0.0
	for _, count := range counts {
		diff := float64(count) - mean
		variance += diff * diff
	}
	variance /= float64(len(counts))

	return mean, math.Sqrt(variance)
}
