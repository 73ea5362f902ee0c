package license

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Enforcer runs periodic checks against a Gate's current tier: source,
// table and throughput counts are self-reported by the host application
// (SetSources/SetTables/RecordEvent) and compared against Limits() once
// per CheckInterval, without calling back into the session.Core on every
// event.
type Enforcer struct {
	mu sync.RWMutex

	gate *Gate

	currentSources    int
	currentTables     int
	currentThroughput int64

	eventCount    int64
	lastCheck     time.Time
	checkInterval time.Duration

	onLimitExceeded func(limitType string, current, max int64)
	onLicenseExpiry func(daysRemaining int)
}

// EnforcerConfig configures an Enforcer.
type EnforcerConfig struct {
	Gate            *Gate
	CheckInterval   time.Duration
	OnLimitExceeded func(limitType string, current, max int64)
	OnLicenseExpiry func(daysRemaining int)
}

// NewEnforcer constructs an Enforcer.
func NewEnforcer(cfg EnforcerConfig) *Enforcer {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Enforcer{
		gate:            cfg.Gate,
		checkInterval:   cfg.CheckInterval,
		lastCheck:       time.Now(),
		onLimitExceeded: cfg.OnLimitExceeded,
		onLicenseExpiry: cfg.OnLicenseExpiry,
	}
}

// StartEnforcement begins the background check loop on its own goroutine
// and returns immediately; the loop exits once ctx is cancelled.
func (e *Enforcer) StartEnforcement(ctx context.Context) {
	go e.enforcementLoop(ctx)
}

func (e *Enforcer) enforcementLoop(ctx context.Context) {
	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.performChecks()
		}
	}
}

func (e *Enforcer) performChecks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := time.Since(e.lastCheck).Seconds()
	if elapsed > 0 {
		e.currentThroughput = int64(float64(e.eventCount) / elapsed)
	}
	e.eventCount = 0
	e.lastCheck = time.Now()

	e.checkAgainstLimits(e.gate.Limits())
}

func (e *Enforcer) checkAgainstLimits(limits Limits) {
	if limits.MaxSources > 0 && e.currentSources > limits.MaxSources {
		if e.onLimitExceeded != nil {
			e.onLimitExceeded("sources", int64(e.currentSources), int64(limits.MaxSources))
		}
	}
	if limits.MaxTables > 0 && e.currentTables > limits.MaxTables {
		if e.onLimitExceeded != nil {
			e.onLimitExceeded("tables", int64(e.currentTables), int64(limits.MaxTables))
		}
	}
	if limits.MaxThroughput > 0 && e.currentThroughput > limits.MaxThroughput {
		if e.onLimitExceeded != nil {
			e.onLimitExceeded("throughput", e.currentThroughput, limits.MaxThroughput)
		}
	}
}

// RecordEvent records one event for throughput tracking.
func (e *Enforcer) RecordEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventCount++
}

// SetSources updates the current source count.
func (e *Enforcer) SetSources(count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentSources = count
}

// SetTables updates the current table count.
func (e *Enforcer) SetTables(count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentTables = count
}

// CheckSourceAllowed returns an error if sourceType isn't compiled into
// this edition, if its feature isn't licensed, or if adding one more
// source would exceed the plan's limit.
func (e *Enforcer) CheckSourceAllowed(sourceType string) error {
	if !AllowAllSources && !IsSourceCompiled(sourceType) {
		return fmt.Errorf("%w: %s is not compiled into the %s build", ErrFeatureNotLicensed, sourceType, Edition)
	}

	feature := sourceTypeToFeature(sourceType)
	if err := e.gate.RequireFeature(feature); err != nil {
		return err
	}

	e.mu.RLock()
	current := e.currentSources
	limits := e.gate.Limits()
	e.mu.RUnlock()

	if limits.MaxSources > 0 && current+1 > limits.MaxSources {
		return fmt.Errorf("%w: %s", ErrLimitExceeded, GetLimitExceededPrompt("sources", int64(current+1), int64(limits.MaxSources)))
	}
	return nil
}

// CheckTableAllowed returns an error if adding one more table would exceed
// the plan's limit.
func (e *Enforcer) CheckTableAllowed() error {
	e.mu.RLock()
	current := e.currentTables
	limits := e.gate.Limits()
	e.mu.RUnlock()

	if limits.MaxTables > 0 && current+1 > limits.MaxTables {
		return fmt.Errorf("%w: %s", ErrLimitExceeded, GetLimitExceededPrompt("tables", int64(current+1), int64(limits.MaxTables)))
	}
	return nil
}

func sourceTypeToFeature(sourceType string) Feature {
	switch sourceType {
	case "postgres", "postgresql":
		return FeaturePostgreSQL
	case "mysql":
		return FeatureMySQL
	case "mariadb":
		return FeatureMariaDB
	case "mongodb":
		return FeatureMongoDB
	case "sqlserver":
		return FeatureSQLServer
	case "oracle":
		return FeatureOracle
	case "cassandra":
		return FeatureCassandra
	case "dynamodb":
		return FeatureDynamoDB
	default:
		return Feature(sourceType)
	}
}

// FeatureGate is a thin, pre-bound convenience wrapper over Gate for
// callers that only ever check features (not limits).
type FeatureGate struct {
	gate *Gate
}

// NewFeatureGate wraps gate.
func NewFeatureGate(gate *Gate) *FeatureGate {
	return &FeatureGate{gate: gate}
}

// Require returns an error if feature is not available.
func (g *FeatureGate) Require(feature Feature) error {
	return g.gate.RequireFeature(feature)
}

// IsEnabled returns true if feature is available.
func (g *FeatureGate) IsEnabled(feature Feature) bool {
	return g.gate.HasFeature(feature)
}

// RequireAny returns an error if none of the features are available.
func (g *FeatureGate) RequireAny(features ...Feature) error {
	for _, f := range features {
		if g.gate.HasFeature(f) {
			return nil
		}
	}
	return fmt.Errorf("%w: one of %v required", ErrFeatureNotLicensed, features)
}

// RequireAll returns an error if any of the features are not available.
func (g *FeatureGate) RequireAll(features ...Feature) error {
	for _, f := range features {
		if !g.gate.HasFeature(f) {
			return g.gate.RequireFeature(f)
		}
	}
	return nil
}

// GetTier returns the current license tier.
func (g *FeatureGate) GetTier() Tier {
	return g.gate.Tier()
}

func (g *FeatureGate) IsCommunity() bool  { return g.GetTier() == TierCommunity }
func (g *FeatureGate) IsPro() bool        { return g.GetTier() == TierPro }
func (g *FeatureGate) IsEnterprise() bool { return g.GetTier() == TierEnterprise }

// GetUpgradePrompt returns a user-friendly upgrade message for a feature.
func GetUpgradePrompt(feature Feature) string {
	prompts := map[Feature]string{
		FeatureCompression:          "Upgrade to Pro to enable compression and save 4-10x on storage costs. Visit https://savegress.io/pricing",
		FeatureDLQ:                  "Upgrade to Pro to enable Dead Letter Queue and prevent data loss. Visit https://savegress.io/pricing",
		FeatureSchemaEvolution:      "Upgrade to Pro to enable automatic schema evolution. Visit https://savegress.io/pricing",
		FeaturePrometheus:           "Upgrade to Pro to export Prometheus metrics for your monitoring stack. Visit https://savegress.io/pricing",
		FeatureAdvancedRateLimiting: "Upgrade to Pro for adaptive rate limiting and better flow control. Visit https://savegress.io/pricing",
		FeatureBackpressure:         "Upgrade to Pro for backpressure control at high throughput. Visit https://savegress.io/pricing",
		FeatureReplay:               "Upgrade to Pro to replay events for debugging and recovery. Visit https://savegress.io/pricing",
		FeatureSLAMonitoring:        "Upgrade to Pro for SLA monitoring and alerting. Visit https://savegress.io/pricing",

		FeaturePITR:                    "Upgrade to Enterprise for Point-in-Time Recovery. Visit https://savegress.io/pricing",
		FeatureCloudStorage:            "Upgrade to Enterprise to use S3, GCS, or Azure storage backends. Visit https://savegress.io/pricing",
		FeatureOpenTelemetry:           "Upgrade to Enterprise for full OpenTelemetry distributed tracing. Visit https://savegress.io/pricing",
		FeatureCompressionSIMD:         "Upgrade to Enterprise for SIMD-optimized compression. Visit https://savegress.io/pricing",
		FeatureExactlyOnce:             "Upgrade to Enterprise for exactly-once delivery semantics. Visit https://savegress.io/pricing",
		FeatureSchemaMigrationApproval: "Upgrade to Enterprise for schema migration approval workflows. Visit https://savegress.io/pricing",
		FeatureMTLS:                    "Upgrade to Enterprise for mutual TLS authentication. Visit https://savegress.io/pricing",
		FeatureRBAC:                    "Upgrade to Enterprise for role-based access control. Visit https://savegress.io/pricing",
		FeatureVault:                   "Upgrade to Enterprise for HashiCorp Vault integration. Visit https://savegress.io/pricing",
		FeatureHA:                      "Upgrade to Enterprise for high availability mode. Visit https://savegress.io/pricing",
		FeatureRaftCluster:             "Upgrade to Enterprise for Raft consensus clustering. Visit https://savegress.io/pricing",
		FeatureMultiRegion:             "Upgrade to Enterprise for multi-region deployment. Visit https://savegress.io/pricing",
		FeatureOracle:                  "Upgrade to Enterprise to use Oracle as a source. Visit https://savegress.io/pricing",
	}
	if prompt, ok := prompts[feature]; ok {
		return prompt
	}
	return "Upgrade your license to access this feature. Visit https://savegress.io/pricing"
}

// GetLimitExceededPrompt returns a user-friendly message when a limit is
// exceeded.
func GetLimitExceededPrompt(limitType string, current, max int64) string {
	switch limitType {
	case "sources":
		return fmt.Sprintf("Source limit reached (%d/%d). Upgrade your plan to add more sources.", current, max)
	case "tables":
		return fmt.Sprintf("Table limit reached (%d/%d). Upgrade your plan to track more tables.", current, max)
	case "throughput":
		return fmt.Sprintf("Throughput limit reached (%d/%d events/sec). Upgrade your plan for higher throughput.", current, max)
	default:
		return fmt.Sprintf("%s limit reached (%d/%d).", limitType, current, max)
	}
}

// GetExpiryWarning returns a user-friendly expiry warning message.
func GetExpiryWarning(daysRemaining int) string {
	if daysRemaining <= 0 {
		return "Your license has expired. Renew at https://savegress.io/pricing to continue."
	}
	return fmt.Sprintf("Your license expires in %d day(s). Renew at https://savegress.io/pricing.", daysRemaining)
}
