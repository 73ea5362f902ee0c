// Package license is the tier/feature convenience layer on top of
// session.Core: Savegress's CDC engine branded its premium capabilities as
// Tier/Feature/Limits rather than bare entitlement keys, and host
// applications built on savegress-platform's SDK already call
// FeatureGate.Require and GetUpgradePrompt. This package keeps that idiom
// but no longer owns the license format itself — Tier, the active Feature
// set and Limits are all derived from the session.Core's last validation
// result (licensemodel.ValidationResult.ActiveEntitlements) rather than
// parsed from a bespoke base64(json).base64(signature) key.
package license

import (
	"errors"
	"fmt"

	"github.com/savegress/license-runtime/session"
)

// Tier represents the license tier. It is derived from the cached
// license's plan_key, not carried as a separate signed field.
type Tier string

const (
	TierCommunity  Tier = "community"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierTrial      Tier = "trial"
)

// Feature represents a licensable feature. Each Feature maps 1:1 to an
// entitlement key granted by the license service; the mapping is the
// identity function (Feature and entitlement key are the same string) so
// existing deployments' entitlement catalogs need no translation table.
type Feature string

const (
	// Community (free tier)
	FeaturePostgreSQL Feature = "postgresql"
	FeatureMySQL      Feature = "mysql"
	FeatureMariaDB    Feature = "mariadb"

	// Pro
	FeatureMongoDB              Feature = "mongodb"
	FeatureSQLServer            Feature = "sqlserver"
	FeatureCassandra            Feature = "cassandra"
	FeatureDynamoDB             Feature = "dynamodb"
	FeatureSnapshot             Feature = "snapshot"
	FeatureWebhook              Feature = "webhook"
	FeatureKafkaOutput          Feature = "kafka_output"
	FeatureGRPCOutput           Feature = "grpc_output"
	FeatureCompression          Feature = "compression"
	FeatureAdvancedRateLimiting Feature = "advanced_rate_limiting"
	FeatureBackpressure         Feature = "backpressure"
	FeatureDLQ                  Feature = "dlq"
	FeatureReplay               Feature = "replay"
	FeatureSchemaEvolution      Feature = "schema_evolution"
	FeaturePrometheus           Feature = "prometheus"
	FeatureSLAMonitoring        Feature = "sla_monitoring"

	// Enterprise
	FeatureOracle                  Feature = "oracle"
	FeatureCustomOutput            Feature = "custom_output"
	FeatureCompressionSIMD         Feature = "compression_simd"
	FeatureExactlyOnce             Feature = "exactly_once"
	FeaturePITR                    Feature = "pitr"
	FeatureCloudStorage            Feature = "cloud_storage"
	FeatureSchemaMigrationApproval Feature = "schema_migration_approval"
	FeatureOpenTelemetry           Feature = "opentelemetry"
	FeatureHA                      Feature = "ha"
	FeatureRaftCluster             Feature = "raft_cluster"
	FeatureMultiRegion             Feature = "multi_region"
	FeatureEncryption              Feature = "encryption"
	FeatureMTLS                    Feature = "mtls"
	FeatureRBAC                    Feature = "rbac"
	FeatureVault                   Feature = "vault"
	FeatureAuditLog                Feature = "audit_log"
	FeatureSSO                     Feature = "sso"
	FeatureLDAP                    Feature = "ldap"
	FeatureMultiTenant             Feature = "multi_tenant"
)

// CommunityFeatures are available with no license at all.
var CommunityFeatures = []Feature{FeaturePostgreSQL, FeatureMySQL, FeatureMariaDB}

// ProFeatures require a Pro-or-above plan.
var ProFeatures = []Feature{
	FeatureMongoDB, FeatureSQLServer, FeatureCassandra, FeatureDynamoDB,
	FeatureSnapshot, FeatureKafkaOutput, FeatureGRPCOutput, FeatureWebhook,
	FeatureCompression, FeatureAdvancedRateLimiting, FeatureBackpressure,
	FeatureDLQ, FeatureReplay, FeatureSchemaEvolution, FeaturePrometheus,
	FeatureSLAMonitoring,
}

// EnterpriseFeatures require an Enterprise plan.
var EnterpriseFeatures = []Feature{
	FeatureOracle, FeatureCustomOutput, FeatureCompressionSIMD, FeatureExactlyOnce,
	FeaturePITR, FeatureCloudStorage, FeatureSchemaMigrationApproval, FeatureOpenTelemetry,
	FeatureHA, FeatureRaftCluster, FeatureMultiRegion, FeatureEncryption, FeatureMTLS,
	FeatureRBAC, FeatureVault, FeatureAuditLog, FeatureSSO, FeatureLDAP, FeatureMultiTenant,
}

// Limits describes usage ceilings for a tier. Zero means unlimited.
type Limits struct {
	MaxSources       int
	MaxThroughput    int64
	MaxTables        int
	MaxRetentionDays int
}

var (
	CommunityLimits  = Limits{MaxSources: 1, MaxThroughput: 1000, MaxTables: 10, MaxRetentionDays: 1}
	ProLimits        = Limits{MaxSources: 10, MaxThroughput: 50000, MaxTables: 100, MaxRetentionDays: 30}
	EnterpriseLimits = Limits{}
)

var limitsByTier = map[Tier]Limits{
	TierCommunity:  CommunityLimits,
	TierTrial:      ProLimits,
	TierPro:        ProLimits,
	TierEnterprise: EnterpriseLimits,
}

// tierRank orders tiers so a Gate can clamp a licensed tier down to
// MaxTierAllowed, the ceiling compiled into this binary via the
// community/pro/enterprise build tags (edition.go and friends).
var tierRank = map[Tier]int{
	TierCommunity:  0,
	TierTrial:      1,
	TierPro:        1,
	TierEnterprise: 2,
}

// isBuiltIn reports whether feature is compiled into this edition at all,
// independent of whether a license entitles it. A Community build never
// has Enterprise feature code linked in, so no license can turn it on.
func isBuiltIn(feature Feature) bool {
	for _, f := range BuiltInFeatures() {
		if f == feature {
			return true
		}
	}
	return false
}

var (
	ErrFeatureNotLicensed = errors.New("license: feature not included in current plan")
	ErrLimitExceeded      = errors.New("license: usage limit exceeded")
)

// Gate is a read-through view of a session.Core's current entitlements,
// reshaped into the Tier/Feature/Limits vocabulary. It holds no state of
// its own; every call reads the Core's cache fresh, so it always reflects
// the most recent validation.
type Gate struct {
	core *session.Core
}

// NewGate wraps core in the Tier/Feature convenience view.
func NewGate(core *session.Core) *Gate {
	return &Gate{core: core}
}

// Tier derives the plan tier from the cached license's plan_key, falling
// back to TierCommunity when there is no active license at all, then clamps
// the result to MaxTierAllowed so a license can never unlock more than this
// build was compiled to serve.
func (g *Gate) Tier() Tier {
	tier := TierCommunity
	lic := g.core.GetCurrentLicense()
	if lic != nil && lic.Validation != nil && lic.Validation.Valid {
		switch Tier(lic.PlanKey) {
		case TierPro, TierEnterprise, TierTrial:
			tier = Tier(lic.PlanKey)
		}
	}
	if tierRank[tier] > tierRank[MaxTierAllowed] {
		return MaxTierAllowed
	}
	return tier
}

// HasFeature reports whether feature is both compiled into this edition
// (BuiltInFeatures) and either free (CommunityFeatures) or a currently
// active entitlement.
func (g *Gate) HasFeature(feature Feature) bool {
	if !isBuiltIn(feature) {
		return false
	}
	for _, f := range CommunityFeatures {
		if f == feature {
			return true
		}
	}
	return g.core.HasEntitlement(string(feature))
}

// RequireFeature returns ErrFeatureNotLicensed, wrapped with an upgrade
// prompt, if feature is not active.
func (g *Gate) RequireFeature(feature Feature) error {
	if g.HasFeature(feature) {
		return nil
	}
	return fmt.Errorf("%w: %s — %s", ErrFeatureNotLicensed, feature, GetUpgradePrompt(feature))
}

// Limits returns the usage ceilings for the Gate's current tier.
func (g *Gate) Limits() Limits {
	if l, ok := limitsByTier[g.Tier()]; ok {
		return l
	}
	return CommunityLimits
}
