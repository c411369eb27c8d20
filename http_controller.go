package auth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the account lifecycle endpoints on the router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)
	protect := controller.Auther.Protect(nil)
	optionalProtect := controller.Auther.Protect(controller.Auther.MakeClientRouteAuthErrorHandler(true))

	app.Post(controller.Routes.Signup, controller.SignupPost).
		SetName("auth.signup")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Verify, controller.VerifyPost, optionalProtect).
		SetName("auth.verify")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("auth.logout")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("auth.pwd-forgot")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.ResetTokenCheck).
		SetName("auth.pwd-reset.check")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.ResetPasswordPost).
		SetName("auth.pwd-reset.do")

	app.Post(controller.Routes.UpdatePassword, controller.UpdatePasswordPost, protect).
		SetName("auth.pwd-update")

	app.Post(controller.Routes.State, controller.ChangeStatePost, protect).
		SetName("auth.state")

	if controller.Verifier != nil {
		app.Post(controller.Routes.FederatedLogin, controller.FederatedLoginPost).
			SetName("auth.federated")
	}
}

type AuthControllerRoutes struct {
	Signup         string
	Login          string
	Logout         string
	Verify         string
	ForgotPassword string
	PasswordReset  string
	UpdatePassword string
	State          string
	FederatedLogin string
}

type AuthController struct {
	Debug          bool
	Logger         Logger
	Gateway        Gateway
	Auther         *RouteAuthenticator
	Verifier       *FederatedVerifier
	FederatedRoles []UserRole
	Routes         *AuthControllerRoutes
	ErrorHandler   router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerGateway(gateway Gateway) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Gateway = gateway
		return c
	}
}

func WithControllerAuthenticator(auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// WithControllerFederatedVerifier enables the federated login endpoint.
// When roles are given, only accounts holding one of them may use it.
func WithControllerFederatedVerifier(verifier *FederatedVerifier, roles ...UserRole) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Verifier = verifier
		c.FederatedRoles = roles
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Signup:         "/signup",
			Login:          "/login",
			Logout:         "/logout",
			Verify:         "/verify",
			ForgotPassword: "/forgot-password",
			PasswordReset:  "/reset-password",
			UpdatePassword: "/update-password",
			State:          "/account/state",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Gateway == nil {
		panic("Missing Gateway in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.errorResponse
	}

	if c.Routes.FederatedLogin == "" {
		c.Routes.FederatedLogin = "/federated/login"
	}

	return c
}

// SignupPayload is the registration body
type SignupPayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r SignupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) SignupPost(ctx router.Context) error {
	payload := new(SignupPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("signup payload: %s", print.MaybePrettyJSON(payload))
	}

	result, err := a.Gateway.Signup(ctx.Context(), SignupInput{
		Name:            payload.Name,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Password:        payload.Password,
		PasswordConfirm: payload.PasswordConfirm,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user":                 result.User,
		"token":                result.Token,
		"pending_verification": result.PendingVerification,
	})
}

// LoginPayload is the credential body
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	result, err := a.Gateway.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if result.PendingVerification {
		return ctx.JSON(router.StatusOK, map[string]any{
			"pending_verification": true,
			"message":              "a new verification code was sent to your email",
		})
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

// VerifyPayload carries the submitted one-time code
type VerifyPayload struct {
	Code string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r VerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	// a pending caller may still hold the signup session; use it to
	// attribute failed attempts
	var opts []VerifyOption
	if claims, ok := GetRouterClaims(ctx, a.Auther.cfg.GetContextKey()); ok {
		opts = append(opts, WithVerifyAttribution(claims.UserID()))
	}

	result, err := a.Gateway.Verify(ctx.Context(), payload.Code, opts...)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"message": "logged out",
	})
}

// ForgotPasswordPayload holds the address to send the reset token to
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPasswordPost answers identically for known and unknown addresses.
func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := a.Gateway.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": "if that email is registered, a reset token is on its way",
	})
}

func (a *AuthController) ResetTokenCheck(ctx router.Context) error {
	if err := a.Gateway.VerifyResetToken(ctx.Context(), ctx.Param("token")); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"valid": true,
	})
}

// ResetPasswordPayload carries the replacement password
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) ResetPasswordPost(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	result, err := a.Gateway.ResetPassword(ctx.Context(), ctx.Param("token"), payload.Password, payload.PasswordConfirm)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

// UpdatePasswordPayload requires current-password proof
type UpdatePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// Validate will run validation rules
func (r UpdatePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) UpdatePasswordPost(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthenticated)
	}

	payload := new(UpdatePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	result, err := a.Gateway.UpdatePassword(ctx.Context(), claims.UserID(), payload.CurrentPassword, payload.Password, payload.PasswordConfirm)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

// ChangeStatePayload names the requested account state
type ChangeStatePayload struct {
	State string `form:"state" json:"state"`
}

// Validate will run validation rules
func (r ChangeStatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.State, validation.Required, validation.In(StateActive, StateBanned)),
	)
}

func (a *AuthController) ChangeStatePost(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthenticated)
	}

	payload := new(ChangeStatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	user, err := a.Gateway.ChangeState(ctx.Context(), claims.UserID(), payload.State)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

// FederatedLoginPayload carries the upstream ID token
type FederatedLoginPayload struct {
	IDToken string `form:"id_token" json:"id_token"`
}

// Validate will run validation rules
func (r FederatedLoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

func (a *AuthController) FederatedLoginPost(ctx router.Context) error {
	payload := new(FederatedLoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationFailure(err))
	}

	if err := payload.Validate(); err != nil {
		return a.badPayload(ctx, err)
	}

	upstream, err := a.Verifier.VerifyIDToken(ctx.Context(), payload.IDToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	result, err := a.Gateway.FederatedLogin(ctx.Context(), upstream, a.FederatedRoles...)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Auther.SetSessionCookie(ctx, result.Token, result.ExpiresAt)

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

func (a *AuthController) badPayload(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":   "invalid input",
			"text_code": TextCodeValidationFailure,
			"fields":    FormatValidationErrorToMap(err),
		},
	})
}

// errorResponse renders a rich error without leaking internals: the
// message and text code travel, metadata and causes stay server-side.
func (a *AuthController) errorResponse(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	if richErr.Category == goerrors.CategoryInternal || richErr.Category == goerrors.CategoryOperation {
		a.Logger.Error("auth controller error: %s %s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

// ValidateStringEquals builds an ozzo rule asserting equality with the
// captured value.
func ValidateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("does not match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors to a
// field->message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
