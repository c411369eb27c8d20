package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// DefaultMaxVerifyAttempts is the number of failed verification attempts
// an account may accumulate before it is banned.
const DefaultMaxVerifyAttempts = 3

// passwordChangedSkew is subtracted from the recorded password change
// moment so a session minted immediately after the change is not
// considered stale by its own update.
const passwordChangedSkew = time.Second

// AccountGateway is the default Gateway implementation. It is stateless
// across requests; all shared mutable state lives in the credential store
// and every transition is a single conditional write there.
type AccountGateway struct {
	repo              RepositoryManager
	tokens            TokenService
	states            StateMachine
	codes             *CodeIssuer
	delivery          DeliveryChannel
	deliveryTimeout   time.Duration
	hasher            PasswordAuthenticator
	activitySink      ActivitySink
	logger            Logger
	now               func() time.Time
	maxVerifyAttempts int
	phoneRegion       string
}

var _ Gateway = (*AccountGateway)(nil)

// GatewayOption customizes gateway construction.
type GatewayOption func(*AccountGateway)

// WithGatewayDelivery sets the out-of-band channel used for one-time codes.
func WithGatewayDelivery(channel DeliveryChannel) GatewayOption {
	return func(g *AccountGateway) {
		if channel != nil {
			g.delivery = channel
		}
	}
}

// WithGatewayDeliveryTimeout bounds each delivery call.
func WithGatewayDeliveryTimeout(timeout time.Duration) GatewayOption {
	return func(g *AccountGateway) {
		if timeout > 0 {
			g.deliveryTimeout = timeout
		}
	}
}

// WithGatewayCodeIssuer overrides the one-time code issuer.
func WithGatewayCodeIssuer(codes *CodeIssuer) GatewayOption {
	return func(g *AccountGateway) {
		if codes != nil {
			g.codes = codes
		}
	}
}

// WithGatewayStateMachine overrides the account state machine.
func WithGatewayStateMachine(states StateMachine) GatewayOption {
	return func(g *AccountGateway) {
		if states != nil {
			g.states = states
		}
	}
}

// WithGatewayPasswordHasher overrides the password hashing strategy.
func WithGatewayPasswordHasher(hasher PasswordAuthenticator) GatewayOption {
	return func(g *AccountGateway) {
		if hasher != nil {
			g.hasher = hasher
		}
	}
}

// WithGatewayActivitySink sets the sink receiving audit events.
func WithGatewayActivitySink(sink ActivitySink) GatewayOption {
	return func(g *AccountGateway) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithGatewayLogger overrides the default logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *AccountGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayClock injects a custom clock (useful for tests).
func WithGatewayClock(clock func() time.Time) GatewayOption {
	return func(g *AccountGateway) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithGatewayMaxVerifyAttempts overrides the lockout threshold.
func WithGatewayMaxVerifyAttempts(max int) GatewayOption {
	return func(g *AccountGateway) {
		if max > 0 {
			g.maxVerifyAttempts = max
		}
	}
}

// WithGatewayPhoneRegion sets the default region for phone normalization.
func WithGatewayPhoneRegion(region string) GatewayOption {
	return func(g *AccountGateway) {
		if region != "" {
			g.phoneRegion = region
		}
	}
}

// NewGateway wires a gateway over the given repositories and token service.
func NewGateway(repo RepositoryManager, tokens TokenService, opts ...GatewayOption) (*AccountGateway, error) {
	if repo == nil {
		return nil, goerrors.New("repository manager is required", goerrors.CategoryBadInput)
	}
	if tokens == nil {
		return nil, goerrors.New("token service is required", goerrors.CategoryBadInput)
	}

	g := &AccountGateway{
		repo:              repo,
		tokens:            tokens,
		codes:             NewCodeIssuer(),
		delivery:          noopDeliveryChannel{},
		deliveryTimeout:   DefaultDeliveryTimeout,
		hasher:            bcryptHasher{},
		activitySink:      noopActivitySink{},
		logger:            defLogger{},
		now:               time.Now,
		maxVerifyAttempts: DefaultMaxVerifyAttempts,
		phoneRegion:       "US",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.states == nil {
		g.states = NewStateMachine(repo.Accounts(),
			WithStateMachineActivitySink(g.activitySink),
			WithStateMachineLogger(g.logger),
			WithStateMachineClock(g.now),
		)
	}

	if _, ok := g.delivery.(*BoundedDelivery); !ok {
		g.delivery = NewBoundedDelivery(g.delivery, g.deliveryTimeout)
	}

	return g, nil
}

// Validate checks the SignupInput shape before any record is touched.
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&in.PasswordConfirm, validation.Required),
	)
}

// Signup creates a pending-verification record, issues a verification
// code, attempts delivery and mints a session so the caller can poll
// verification status right away.
func (g *AccountGateway) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	if err := input.Validate(); err != nil {
		return nil, validationFailure(err)
	}

	if input.Password != input.PasswordConfirm {
		return nil, ErrValidationFailure.WithMetadata(map[string]any{
			"reason": "password confirmation does not match",
		})
	}

	passwordHash, err := g.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	code, err := g.codes.Issue(PurposeVerification)
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:                  input.Name,
		Email:                 NormalizeEmail(input.Email),
		Phone:                 NormalizePhone(input.Phone, g.phoneRegion),
		PasswordHash:          passwordHash,
		Role:                  RoleUser,
		State:                 StatePendingVerification,
		VerificationTokenHash: code.Hash,
		VerificationExpiresAt: &code.ExpiresAt,
	}

	created, err := g.repo.Accounts().CreateAccount(ctx, user)
	if err != nil {
		if goerrors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, storeFailure(err, "failed to create account")
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignup,
		Actor:     ActorRef{ID: created.ID.String(), Type: "user"},
		UserID:    created.ID.String(),
		ToState:   created.State,
	})

	if err := g.deliverVerification(ctx, created, code); err != nil {
		return nil, err
	}

	return g.mintResult(created, true)
}

// Login verifies credentials. A pending account gets a fresh verification
// code instead of a session; "no such account", "wrong password" and
// "banned" are indistinguishable from the outside.
func (g *AccountGateway) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := g.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			g.recordActivity(ctx, ActivityEvent{
				EventType: ActivityEventLoginFailure,
				Metadata:  map[string]any{"reason": "unknown identifier"},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, storeFailure(err, "failed to look up account")
	}

	if err := g.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		g.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    user.ID.String(),
			Metadata:  map[string]any{"reason": "password mismatch"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.IsPendingVerification() {
		code, err := g.codes.Issue(PurposeVerification)
		if err != nil {
			return nil, err
		}

		if err := g.repo.Accounts().SetVerificationToken(ctx, user.ID.String(), code.Hash, code.ExpiresAt); err != nil {
			return nil, storeFailure(err, "failed to store verification token")
		}

		if err := g.deliverVerification(ctx, user, code); err != nil {
			return nil, err
		}

		return &AuthResult{User: user, PendingVerification: true}, nil
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return g.mintResult(user, false)
}

// VerifyOption customizes a single Verify call.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	attributedID string
}

// WithVerifyAttribution names the account a failed attempt should be
// counted against when the submitted code matches no stored hash. Callers
// that already hold an authenticated pending session should pass it.
func WithVerifyAttribution(userID string) VerifyOption {
	return func(o *verifyOptions) {
		o.attributedID = userID
	}
}

// Verify resolves the record solely by the hash of the submitted code,
// flips it to active, clears the token fields in the same write and mints
// a session. A wrong or expired code yields the same error either way.
func (g *AccountGateway) Verify(ctx context.Context, code string, opts ...VerifyOption) (*AuthResult, error) {
	options := &verifyOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if code == "" {
		return nil, ErrInvalidOrExpiredCode
	}

	hash := HashOneTimeCode(code)
	accounts := g.repo.Accounts()

	user, err := accounts.GetByVerificationHash(ctx, hash, g.now())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, g.recordVerifyFailure(ctx, hash, options.attributedID)
		}
		return nil, storeFailure(err, "failed to look up verification code")
	}

	activated, err := accounts.ActivateVerified(ctx, user.ID.String(), hash)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// lost the race against a concurrent verify
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, storeFailure(err, "failed to activate account")
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventVerifySuccess,
		Actor:     ActorRef{ID: activated.ID.String(), Type: "user"},
		UserID:    activated.ID.String(),
		FromState: StatePendingVerification,
		ToState:   activated.State,
	})

	return g.mintResult(activated, false)
}

// recordVerifyFailure counts a failed attempt against the record it can be
// attributed to: either the one holding the (expired) hash, or the caller
// named by attribution. Crossing the threshold bans the record in the same
// store write.
func (g *AccountGateway) recordVerifyFailure(ctx context.Context, hash, attributedID string) error {
	accounts := g.repo.Accounts()

	target := attributedID
	if candidate, err := accounts.FindVerificationCandidate(ctx, hash); err == nil {
		target = candidate.ID.String()
	}

	if target == "" {
		return ErrInvalidOrExpiredCode
	}

	updated, err := accounts.RecordFailedVerification(ctx, target, g.maxVerifyAttempts)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			g.logger.Error("failed to record verification attempt: %v", err)
		}
		return ErrInvalidOrExpiredCode
	}

	event := ActivityEvent{
		EventType: ActivityEventVerifyFailure,
		UserID:    updated.ID.String(),
		Metadata:  map[string]any{"attempts": updated.VerifyAttempts},
	}
	if updated.IsBanned() {
		event.FromState = StatePendingVerification
		event.ToState = StateBanned
	}
	g.recordActivity(ctx, event)

	return ErrInvalidOrExpiredCode
}

// ChangeState applies a self-service transition to the caller's own
// account. Activation is never reachable this way; that requires a
// verified code or a trusted upstream.
func (g *AccountGateway) ChangeState(ctx context.Context, callerID string, target AccountState) (*User, error) {
	user, err := g.repo.Accounts().GetByID(ctx, callerID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, storeFailure(err, "failed to look up account")
	}

	if target == StateActive {
		return nil, ErrForbidden.WithMetadata(map[string]any{
			"reason": "activation requires verification",
		})
	}

	actor := ActorRef{ID: user.ID.String(), Type: "user"}
	return g.states.Transition(ctx, actor, user, target,
		WithTransitionReason("self-service state change"))
}

// ForgotPassword issues a reset token for the account, if one exists. The
// outcome is success-shaped for unknown addresses so callers cannot probe
// which emails are registered; only a delivery failure is surfaced.
func (g *AccountGateway) ForgotPassword(ctx context.Context, email string) error {
	user, err := g.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			g.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return storeFailure(err, "failed to look up account")
	}

	token, err := g.codes.Issue(PurposeReset)
	if err != nil {
		return err
	}

	if err := g.repo.Accounts().SetResetToken(ctx, user.ID.String(), token.Hash, token.ExpiresAt); err != nil {
		return storeFailure(err, "failed to store reset token")
	}

	if err := g.delivery.DeliverResetToken(ctx, user, token.Plaintext, token.ExpiresAt); err != nil {
		g.rollbackResetToken(ctx, user.ID.String(), token.Hash)
		g.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventCodeDeliveryFailure,
			UserID:    user.ID.String(),
			Metadata:  map[string]any{"purpose": string(PurposeReset)},
		})
		return err
	}

	return nil
}

// VerifyResetToken checks a candidate without mutating anything; it gates
// the "set new password" step.
func (g *AccountGateway) VerifyResetToken(ctx context.Context, candidate string) error {
	if candidate == "" {
		return ErrInvalidOrExpiredCode
	}

	_, err := g.repo.Accounts().GetByResetHash(ctx, HashOneTimeCode(candidate), g.now())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidOrExpiredCode
		}
		return storeFailure(err, "failed to look up reset token")
	}

	return nil
}

// ResetPassword redeems a reset token: replaces the password hash, clears
// the token fields, advances passwordChangedAt and mints a fresh session.
func (g *AccountGateway) ResetPassword(ctx context.Context, candidate, password, passwordConfirm string) (*AuthResult, error) {
	if err := validatePasswordPair(password, passwordConfirm); err != nil {
		return nil, err
	}

	if candidate == "" {
		return nil, ErrInvalidOrExpiredCode
	}

	user, err := g.repo.Accounts().GetByResetHash(ctx, HashOneTimeCode(candidate), g.now())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, storeFailure(err, "failed to look up reset token")
	}

	updated, err := g.replacePassword(ctx, user, password)
	if err != nil {
		return nil, err
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: updated.ID.String(), Type: "user"},
		UserID:    updated.ID.String(),
	})

	return g.mintResult(updated, false)
}

// UpdatePassword requires proof of the current password even though the
// caller already holds a session. All previously minted sessions go stale.
func (g *AccountGateway) UpdatePassword(ctx context.Context, callerID, current, password, passwordConfirm string) (*AuthResult, error) {
	user, err := g.repo.Accounts().GetByID(ctx, callerID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, storeFailure(err, "failed to look up account")
	}

	if err := g.hasher.ComparePasswordAndHash(current, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := validatePasswordPair(password, passwordConfirm); err != nil {
		return nil, err
	}

	updated, err := g.replacePassword(ctx, user, password)
	if err != nil {
		return nil, err
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: updated.ID.String(), Type: "user"},
		UserID:    updated.ID.String(),
	})

	return g.mintResult(updated, false)
}

// FederatedLogin trusts an upstream-verified identity: an existing account
// logs straight in (activating it if still pending), an unknown one is
// provisioned active with an unguessable password. When allowedRoles is
// non-empty the resolved role must be in the set.
func (g *AccountGateway) FederatedLogin(ctx context.Context, upstream FederatedIdentity, allowedRoles ...UserRole) (*AuthResult, error) {
	if upstream == nil || NormalizeEmail(upstream.Email()) == "" {
		return nil, ErrValidationFailure.WithMetadata(map[string]any{
			"reason": "upstream identity has no email",
		})
	}

	email := NormalizeEmail(upstream.Email())

	user, err := g.repo.Accounts().GetByEmail(ctx, email)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, storeFailure(err, "failed to look up account")
	}

	if err != nil {
		user, err = g.provisionFederated(ctx, email, upstream.DisplayName(), allowedRoles...)
		if err != nil {
			return nil, err
		}
	} else {
		if len(allowedRoles) > 0 && !RoleIn(user.Role, allowedRoles...) {
			return nil, ErrForbidden
		}

		if user.IsPendingVerification() {
			actor := ActorRef{ID: user.ID.String(), Type: "system"}
			user, err = g.states.Transition(ctx, actor, user, StateActive,
				WithTransitionReason("trusted upstream identity"))
			if err != nil {
				return nil, err
			}
		}
	}

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventFederatedLogin,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return g.mintResult(user, false)
}

// provisionFederated creates an active record for a first federated login.
// The banned read path hides banned records, so a duplicate here means a
// banned account exists for that address; the caller gets the same
// forbidden answer as a role mismatch.
func (g *AccountGateway) provisionFederated(ctx context.Context, email, displayName string, allowedRoles ...UserRole) (*User, error) {
	if len(allowedRoles) > 0 && !RoleIn(RoleUser, allowedRoles...) {
		return nil, ErrForbidden
	}

	user := &User{
		Name:         displayName,
		Email:        email,
		Role:         RoleUser,
		State:        StateActive,
		PasswordHash: RandomPasswordHash(),
	}

	if id, err := federatedAccountID(email); err == nil {
		user.ID = id
	}

	created, err := g.repo.Accounts().CreateAccount(ctx, user)
	if err != nil {
		if goerrors.Is(err, ErrDuplicateEmail) {
			return nil, ErrForbidden
		}
		return nil, storeFailure(err, "failed to provision account")
	}

	return created, nil
}

// Resolve maps validated session claims back to the live record, rejecting
// sessions minted before the last password change.
func (g *AccountGateway) Resolve(ctx context.Context, claims AuthClaims) (*User, error) {
	if claims == nil || claims.UserID() == "" {
		return nil, ErrUnauthenticated
	}

	user, err := g.repo.Accounts().GetByID(ctx, claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, storeFailure(err, "failed to resolve session")
	}

	if user.IsBanned() {
		return nil, ErrUnauthenticated
	}

	if IsStale(claims.IssuedAt(), user.PasswordChangedAt) {
		return nil, ErrStaleSession
	}

	return user, nil
}

func (g *AccountGateway) replacePassword(ctx context.Context, user *User, password string) (*User, error) {
	passwordHash, err := g.hasher.HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	changedAt := g.now().Add(-passwordChangedSkew)

	updated, err := g.repo.Accounts().ReplacePassword(ctx, user.ID.String(), passwordHash, changedAt)
	if err != nil {
		return nil, storeFailure(err, "failed to replace password")
	}

	return updated, nil
}

// deliverVerification hands the plaintext code to the channel and rolls
// the token fields back when delivery fails, so the record stays clean
// and retryable.
func (g *AccountGateway) deliverVerification(ctx context.Context, user *User, code IssuedCode) error {
	err := g.delivery.DeliverVerificationCode(ctx, user, code.Plaintext, code.ExpiresAt)
	if err == nil {
		return nil
	}

	if rbErr := g.repo.Accounts().ClearVerificationToken(ctx, user.ID.String(), code.Hash); rbErr != nil {
		g.logger.Error("failed to roll back verification token: %v", rbErr)
	}
	user.VerificationTokenHash = ""
	user.VerificationExpiresAt = nil

	g.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCodeDeliveryFailure,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"purpose": string(PurposeVerification)},
	})

	return err
}

func (g *AccountGateway) rollbackResetToken(ctx context.Context, id, hash string) {
	if err := g.repo.Accounts().ClearResetToken(ctx, id, hash); err != nil {
		g.logger.Error("failed to roll back reset token: %v", err)
	}
}

func (g *AccountGateway) mintResult(user *User, pending bool) (*AuthResult, error) {
	token, expiresAt, err := g.tokens.Mint(userIdentity{user}, g.now())
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:                user,
		Token:               token,
		ExpiresAt:           expiresAt,
		PendingVerification: pending,
	}, nil
}

func (g *AccountGateway) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = g.now()
	}

	if err := g.activitySink.Record(ctx, event); err != nil {
		g.logger.Warn("gateway activity sink error: %v", err)
	}
}

func validatePasswordPair(password, passwordConfirm string) error {
	if err := validation.Validate(password, validation.Required, validation.Length(8, 72)); err != nil {
		return validationFailure(err)
	}

	if password != passwordConfirm {
		return ErrValidationFailure.WithMetadata(map[string]any{
			"reason": "password confirmation does not match",
		})
	}

	return nil
}

func validationFailure(err error) error {
	return goerrors.Wrap(err, ErrValidationFailure.Category, ErrValidationFailure.Message).
		WithTextCode(ErrValidationFailure.TextCode).
		WithCode(ErrValidationFailure.Code)
}

// userIdentity adapts a store record to the Identity minting interface.
type userIdentity struct {
	user *User
}

func (u userIdentity) ID() string    { return u.user.ID.String() }
func (u userIdentity) Email() string { return u.user.Email }
func (u userIdentity) Role() string  { return u.user.Role }

// bcryptHasher is the default PasswordAuthenticator.
type bcryptHasher struct{}

func (bcryptHasher) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

func (bcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}
