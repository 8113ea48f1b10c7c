package tokenauth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventFederatedSignIn       = "federated_sign_in"
	auditEventFederatedRegistration = "federated_registration"
	auditEventRegistrationRejected  = "registration_rejected"
	auditEventDependencyFailure     = internalaudit.EventDependencyFailure
	auditEventSignOut               = "sign_out"
)

// AuditErrorCode is the stable error label recorded on audit events.
type AuditErrorCode string

const (
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrInvalidRefreshToken  AuditErrorCode = "invalid_refresh_token"
	auditErrValidation           AuditErrorCode = "validation"
	auditErrDependency           AuditErrorCode = "dependency_failure"
	auditErrCancelled            AuditErrorCode = "cancelled"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitFlowFailure records a failed flow under eventType. Dependency failures
// are always recorded as dependency_failure regardless of the flow.
func (e *Engine) emitFlowFailure(ctx context.Context, op, eventType string, res flows.Result, err error) {
	if res.Failure == flows.FailureDependency || res.Failure == flows.FailureIssue {
		e.metricInc(MetricDependencyFailure)
		eventType = auditEventDependencyFailure
	}
	e.emitAudit(ctx, eventType, false, res.Account.ID, res.Account.Email, err, func() map[string]string {
		md := map[string]string{
			"operation": op,
			"reason":    res.Reason,
		}
		switch res.Failure {
		case flows.FailureRejected, flows.FailureUnknownAccount:
			md["outcome"] = signInResultOf(res.Verdict).Outcome().String()
		}
		return md
	})
}

// emitDependencyFailure records a store fault outside any flow.
func (e *Engine) emitDependencyFailure(ctx context.Context, op, email string, err error) {
	e.metricInc(MetricDependencyFailure)
	e.emitAudit(ctx, auditEventDependencyFailure, false, "", email, err, func() map[string]string {
		return map[string]string{"operation": op}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCancelled
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidRefreshToken
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrDependencyFailure):
		return auditErrDependency
	default:
		return auditErrInternal
	}
}
