package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Successful password sign-ins."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Password sign-ins rejected as unknown account or refused state."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenauth.MetricRefreshInvalid, Name: "tokenauth_refresh_invalid_total", Help: "Refresh attempts rejected as invalid, including lost races."},
	{ID: tokenauth.MetricRefreshRaceLost, Name: "tokenauth_refresh_race_lost_total", Help: "Refresh attempts that lost a concurrent rotation."},
	{ID: tokenauth.MetricFederatedSignIn, Name: "tokenauth_federated_sign_in_total", Help: "Federated sign-ins of existing accounts."},
	{ID: tokenauth.MetricFederatedRegistration, Name: "tokenauth_federated_registration_total", Help: "Accounts registered from a federated identity."},
	{ID: tokenauth.MetricRegistrationRejected, Name: "tokenauth_registration_rejected_total", Help: "Federated registrations rejected by validation or duplicate email."},
	{ID: tokenauth.MetricDependencyFailure, Name: "tokenauth_dependency_failure_total", Help: "Operations aborted by a store, signer or context failure."},
	{ID: tokenauth.MetricTokensIssued, Name: "tokenauth_tokens_issued_total", Help: "Token pairs minted."},
	{ID: tokenauth.MetricSignOut, Name: "tokenauth_sign_out_total", Help: "Refresh tokens cleared by sign-out."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricIssueLatency, Name: "tokenauth_issue_latency_seconds", Help: "Token pair issuance latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "tokenauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix holds the le label value for each bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
