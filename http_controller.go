package accounts

import (
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the account lifecycle over a JSON API.
type HTTPController struct {
	auther   Authenticator
	provider IdentityProvider
	repo     RepositoryManager
	cfg      Config
	logger   Logger

	register *RegisterUserHandler
	verify   *VerifyAccountHandler
	delete   *DeleteAccountHandler
	hide     *HideAccountHandler
}

// ControllerOption customizes the HTTPController.
type ControllerOption func(*HTTPController)

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *HTTPController) {
		if logger != nil {
			c.logger = logger
			c.register.WithLogger(logger)
			c.verify.WithLogger(logger)
		}
	}
}

// WithControllerActivitySink routes registration and verification audit
// events to the given sink. Login/logout/refresh events are emitted by the
// Authenticator, hide/delete by the AccountLifecycle.
func WithControllerActivitySink(sink ActivitySink) ControllerOption {
	return func(c *HTTPController) {
		c.register.WithActivitySink(sink)
		c.verify.WithActivitySink(sink)
	}
}

// NewHTTPController wires the command handlers behind the JSON routes.
func NewHTTPController(auther Authenticator, provider IdentityProvider, repo RepositoryManager, cfg Config, lifecycle *AccountLifecycle, opts ...ControllerOption) *HTTPController {
	c := &HTTPController{
		auther:   auther,
		provider: provider,
		repo:     repo,
		cfg:      cfg,
		logger:   defLogger{},
		register: NewRegisterUserHandler(repo),
		verify:   NewVerifyAccountHandler(repo),
		delete:   NewDeleteAccountHandler(repo, provider, lifecycle),
		hide:     NewHideAccountHandler(repo, provider, lifecycle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// RegisterRoutes registers the account routes. The protected middleware
// guards the session-bound endpoints. Removal endpoints re-authenticate via
// the request body and only consult the session for the defense-in-depth
// checks, so they stay unguarded. Refresh is also unguarded: the middleware
// rejects expired tokens outright, while the token service still accepts
// them within the refresh grace window, so the handler extracts and
// validates the token itself.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar, protected router.MiddlewareFunc) {
	group.Post("/auth/register", c.Register)
	group.Post("/auth/login", c.Login)
	group.Post("/auth/logout", c.Logout, protected)
	group.Post("/auth/refresh", c.Refresh)
	group.Get("/auth/user-profile", c.UserProfile, protected)
	group.Delete("/auth/delete-account", c.DeleteAccount)
	group.Delete("/auth/hide-account", c.HideAccount)
	group.Get("/auth/verify/:token", c.VerifyEmail)
}

// RegisterPayload is the registration request body.
type RegisterPayload struct {
	Username        string `json:"uname"`
	FirstName       string `json:"fname"`
	LastName        string `json:"lname"`
	Phone           string `json:"pnumber"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"cpassword"`
}

func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.FirstName, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.LastName, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.Phone, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.Email, validation.Required, validation.Length(1, 100), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(6, 0)),
		validation.Field(&p.ConfirmPassword, validation.Required,
			validation.In(p.Password).Error("must match password")),
	)
}

// LoginPayload is the login request body.
type LoginPayload struct {
	Email    string `json:"uemail"`
	Password string `json:"upassword"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(6, 0)),
	)
}

// RemovePayload is the shared request body for account deletion and hiding.
type RemovePayload struct {
	Email           string `json:"uemail"`
	Password        string `json:"upassword"`
	ConfirmPassword string `json:"cpassword"`
}

func (p RemovePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(6, 0)),
		validation.Field(&p.ConfirmPassword, validation.Required,
			validation.In(p.Password).Error("must match password")),
	)
}

// Register creates a new unverified account.
func (c *HTTPController) Register(ctx router.Context) error {
	payload := RegisterPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest), http.StatusBadRequest)
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err, http.StatusBadRequest)
	}

	var resp *RegisterUserResponse
	msg := RegisterUserMessage{
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		Email:     payload.Email,
		Password:  payload.Password,
		OnResponse: func(r *RegisterUserResponse) {
			resp = r
		},
	}

	if err := c.register.Execute(ctx.Context(), msg); err != nil {
		return c.renderError(ctx, err, http.StatusBadRequest)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"message":            "Account successfully registered",
		"user":               resp.User,
		"email_verify_token": resp.VerifyToken,
		"uemail":             resp.User.Email,
		"uid":                resp.User.ID,
	})
}

// Login authenticates credentials and returns a fresh bearer token.
func (c *HTTPController) Login(ctx router.Context) error {
	payload := LoginPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest), http.StatusUnprocessableEntity)
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err, http.StatusUnprocessableEntity)
	}

	result, err := c.auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	user, err := c.repo.Users().FindByID(ctx.Context(), result.Identity.ID())
	if err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, c.tokenBody("Successfully logged in", result, user))
}

// Logout revokes the presented bearer token.
func (c *HTTPController) Logout(ctx router.Context) error {
	raw := c.rawToken(ctx)
	if raw == "" {
		return c.renderError(ctx, ErrTokenMalformed, http.StatusUnprocessableEntity)
	}

	if err := c.auther.Logout(ctx.Context(), raw); err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "Successfully logged out",
	})
}

// Refresh exchanges the presented token for a new one, same body shape as
// login.
func (c *HTTPController) Refresh(ctx router.Context) error {
	raw := c.rawToken(ctx)
	if raw == "" {
		return c.renderError(ctx, ErrTokenMalformed, http.StatusUnprocessableEntity)
	}

	result, err := c.auther.Refresh(ctx.Context(), raw)
	if err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	user, err := c.repo.Users().FindByID(ctx.Context(), result.Identity.ID())
	if err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, c.tokenBody("Token successfully refreshed", result, user))
}

// UserProfile returns the account bound to the current session.
func (c *HTTPController) UserProfile(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, c.cfg.GetContextKey())
	if !ok {
		return c.renderError(ctx, ErrTokenMalformed, http.StatusUnprocessableEntity)
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		return c.renderError(ctx, ErrTokenMalformed, http.StatusUnprocessableEntity)
	}

	identity, err := c.auther.IdentityFromSession(ctx.Context(), session)
	if err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryAuth, "Session identity could not be resolved").
			WithCode(errors.CodeUnauthorized), http.StatusUnprocessableEntity)
	}

	user, err := c.repo.Users().FindByID(ctx.Context(), identity.ID())
	if err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"user": user,
	})
}

// DeleteAccount permanently removes the account after re-authenticating the
// body credentials.
func (c *HTTPController) DeleteAccount(ctx router.Context) error {
	payload := RemovePayload{}
	if err := ctx.Bind(&payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest), http.StatusUnprocessableEntity)
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err, http.StatusUnprocessableEntity)
	}

	var resp *DeleteAccountResponse
	msg := DeleteAccountMessage{
		Email:    payload.Email,
		Password: payload.Password,
		Session:  c.sessionFromRequest(ctx),
		OnResponse: func(r *DeleteAccountResponse) {
			resp = r
		},
	}

	if err := c.delete.Execute(ctx.Context(), msg); err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "Account successfully deleted",
		"user":    resp.User,
	})
}

// HideAccount soft deletes the account: the record survives with salted
// identity fields.
func (c *HTTPController) HideAccount(ctx router.Context) error {
	payload := RemovePayload{}
	if err := ctx.Bind(&payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest), http.StatusUnprocessableEntity)
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err, http.StatusUnprocessableEntity)
	}

	var resp *HideAccountResponse
	msg := HideAccountMessage{
		Email:    payload.Email,
		Password: payload.Password,
		Session:  c.sessionFromRequest(ctx),
		OnResponse: func(r *HideAccountResponse) {
			resp = r
		},
	}

	if err := c.hide.Execute(ctx.Context(), msg); err != nil {
		return c.renderError(ctx, err, http.StatusUnprocessableEntity)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": "Account successfully hidden",
		"user":    resp.User,
	})
}

// VerifyEmail consumes a verification token from the path and redirects to
// login with a human readable status. This endpoint never errors.
func (c *HTTPController) VerifyEmail(ctx router.Context) error {
	token := ctx.Param("token")

	var resp *VerifyAccountResponse
	msg := VerifyAccountMessage{
		Token: token,
		OnResponse: func(r *VerifyAccountResponse) {
			resp = r
		},
	}

	if err := c.verify.Execute(ctx.Context(), msg); err != nil {
		c.logger.Error("VerifyEmail command error", "error", err)
		resp = &VerifyAccountResponse{Message: VerifyMessageNotFound}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": resp.Message,
	}).Redirect("/login?status="+url.QueryEscape(resp.Message), http.StatusFound)
}

func (c *HTTPController) tokenBody(message string, result *LoginResult, user *User) map[string]any {
	return map[string]any{
		"message":      message,
		"access_token": result.AccessToken,
		"token_type":   result.TokenType,
		"expires_in":   result.ExpiresIn,
		"user":         user,
	}
}

// sessionFromRequest resolves an optional bearer session for the removal
// endpoints. A missing or invalid token yields a nil session, which the
// command handlers turn into the "Login first" error.
func (c *HTTPController) sessionFromRequest(ctx router.Context) Session {
	raw, err := jwtware.ExtractRawTokenFromContext(
		ctx,
		jwtware.GetExtractors(c.cfg.GetTokenLookup(), c.cfg.GetAuthScheme()),
	)
	if err != nil || raw == "" {
		return nil
	}

	session, err := c.auther.SessionFromToken(raw)
	if err != nil {
		return nil
	}

	return session
}

func (c *HTTPController) rawToken(ctx router.Context) string {
	if raw, ok := ctx.Locals(RawTokenLocalsKey(c.cfg)).(string); ok && raw != "" {
		return raw
	}

	raw, err := jwtware.ExtractRawTokenFromContext(
		ctx,
		jwtware.GetExtractors(c.cfg.GetTokenLookup(), c.cfg.GetAuthScheme()),
	)
	if err != nil {
		return ""
	}

	return raw
}

func (c *HTTPController) renderValidation(ctx router.Context, err error, status int) error {
	fields := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	} else {
		fields["error"] = err.Error()
	}

	return c.renderError(ctx, ValidationFailed(fields), status)
}

// renderError maps rich errors to `{error: ...}` JSON bodies. Validation
// errors render their field map at the given validation status, register
// uses 400 where the rest of the surface uses 422.
func (c *HTTPController) renderError(ctx router.Context, err error, validationStatus int) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = errors.CodeInternal
	}

	if richErr.Category == errors.CategoryValidation {
		status = validationStatus
		if len(richErr.Metadata) > 0 {
			return ctx.JSON(status, map[string]any{
				"error": richErr.Metadata,
			})
		}
	}

	if status >= 500 {
		c.logger.Error("request failed", "error", richErr.Message, "category", richErr.Category)
	}

	return ctx.JSON(status, map[string]any{
		"error": richErr.Message,
	})
}
