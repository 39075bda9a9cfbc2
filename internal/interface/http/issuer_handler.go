package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/oksasatya/magic-code-auth/internal/application"
	"github.com/oksasatya/magic-code-auth/internal/application/auth"
	"github.com/oksasatya/magic-code-auth/internal/domain/entity"
	"github.com/oksasatya/magic-code-auth/internal/interface/middleware"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
	"github.com/oksasatya/magic-code-auth/pkg/response"
	"github.com/oksasatya/magic-code-auth/pkg/validation"
)

// UserLookup is satisfied by *application.Service.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

type IssuerHandler struct {
	Issuer   *auth.Issuer
	Users    UserLookup
	Logger   *logrus.Logger
	Views    *Views
	BasePath string
	AppName  string
}

func NewIssuerHandler(issuer *auth.Issuer, users UserLookup, logger *logrus.Logger, views *Views, basePath, appName string) *IssuerHandler {
	return &IssuerHandler{
		Issuer:   issuer,
		Users:    users,
		Logger:   logger,
		Views:    views,
		BasePath: strings.TrimRight(basePath, "/"),
		AppName:  appName,
	}
}

func (h *IssuerHandler) codePath() string { return h.BasePath + "/code/authorize" }

// Health GET /
func (h *IssuerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth-server-wrapper"})
}

// Metadata GET /auth/.well-known/oauth-authorization-server
func (h *IssuerHandler) Metadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.Issuer.Metadata())
}

// Authorize GET /auth/authorize
func (h *IssuerHandler) Authorize(c *gin.Context) {
	var req auth.AuthorizationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.errorPage(c, http.StatusBadRequest, "Invalid request", validation.Message(err))
		return
	}
	p, err := h.Issuer.Authorize(c.Request.Context(), req)
	if err != nil {
		oe := auth.AsError(err)
		h.logErr(c, err, "authorize rejected")
		h.errorPage(c, oe.Status(), "Invalid request", oe.Description)
		return
	}
	c.Redirect(http.StatusFound, h.codePath()+"?pending_id="+url.QueryEscape(p.ID))
}

type codePageData struct {
	AppName   string
	Action    string
	PendingID string
	Email     string
	Error     string
	Notice    string
}

func (h *IssuerHandler) page(pendingID string) codePageData {
	return codePageData{AppName: h.AppName, Action: h.codePath(), PendingID: pendingID}
}

// CodePage GET /auth/code/authorize?pending_id=
func (h *IssuerHandler) CodePage(c *gin.Context) {
	id := c.Query("pending_id")
	if _, err := h.Issuer.Pending(c.Request.Context(), id); err != nil {
		h.errorPage(c, auth.AsError(err).Status(), "Sign-in expired", "Please start again from the application.")
		return
	}
	d := h.page(id)
	if email, err := h.Issuer.Codes().Email(c.Request.Context(), id); err == nil {
		d.Email = email
		h.Views.Render(c, http.StatusOK, ViewCode, d)
		return
	}
	h.Views.Render(c, http.StatusOK, ViewEmail, d)
}

type codeActionForm struct {
	PendingID string `form:"pending_id" binding:"required"`
	Action    string `form:"action" binding:"required,oneof=request resend verify"`
}

type emailForm struct {
	Email string `form:"email" binding:"required,email"`
}

type verifyForm struct {
	Code string `form:"code" binding:"required,logincode"`
}

// CodeAction POST /auth/code/authorize
func (h *IssuerHandler) CodeAction(c *gin.Context) {
	var f codeActionForm
	if err := c.ShouldBind(&f); err != nil {
		h.errorPage(c, http.StatusBadRequest, "Invalid request", validation.Message(err))
		return
	}
	switch f.Action {
	case "request":
		h.requestCode(c, f.PendingID)
	case "resend":
		h.resendCode(c, f.PendingID)
	case "verify":
		h.verifyCode(c, f.PendingID)
	}
}

func (h *IssuerHandler) meta(c *gin.Context) auth.RequestMeta {
	return auth.RequestMeta{IP: middleware.ClientIP(c), UserAgent: c.GetHeader("User-Agent")}
}

func (h *IssuerHandler) requestCode(c *gin.Context, pendingID string) {
	d := h.page(pendingID)
	var ef emailForm
	if err := c.ShouldBind(&ef); err != nil {
		d.Email = c.PostForm("email")
		d.Error = "Please enter a valid email address."
		h.Views.Render(c, http.StatusBadRequest, ViewEmail, d)
		return
	}
	if err := h.Issuer.StartCode(c.Request.Context(), pendingID, ef.Email, h.meta(c)); err != nil {
		h.codeError(c, d, err)
		return
	}
	d.Email = auth.NormalizeEmail(ef.Email)
	h.Views.Render(c, http.StatusOK, ViewCode, d)
}

func (h *IssuerHandler) resendCode(c *gin.Context, pendingID string) {
	d := h.page(pendingID)
	if err := h.Issuer.ResendCode(c.Request.Context(), pendingID, h.meta(c)); err != nil {
		h.codeError(c, d, err)
		return
	}
	d.Email, _ = h.Issuer.Codes().Email(c.Request.Context(), pendingID)
	d.Notice = "A new code is on its way."
	h.Views.Render(c, http.StatusOK, ViewCode, d)
}

func (h *IssuerHandler) verifyCode(c *gin.Context, pendingID string) {
	ctx := c.Request.Context()
	d := h.page(pendingID)
	d.Email, _ = h.Issuer.Codes().Email(ctx, pendingID)

	var vf verifyForm
	if err := c.ShouldBind(&vf); err != nil {
		if d.Email == "" {
			h.codeError(c, d, auth.ErrCodeExpired)
			return
		}
		d.Error = "Enter the 6-digit code from the email."
		h.Views.Render(c, http.StatusBadRequest, ViewCode, d)
		return
	}
	redirect, err := h.Issuer.ConfirmCode(ctx, pendingID, vf.Code)
	if err != nil {
		h.codeError(c, d, err)
		return
	}
	c.Redirect(http.StatusFound, redirect)
}

// codeError maps code flow errors onto the page the user should see next.
func (h *IssuerHandler) codeError(c *gin.Context, d codePageData, err error) {
	var oe *auth.Error
	switch {
	case errors.Is(err, auth.ErrInvalidCode):
		d.Error = "That code is not correct. Try again."
		h.Views.Render(c, http.StatusBadRequest, ViewCode, d)
	case errors.Is(err, auth.ErrCodeExpired), errors.Is(err, auth.ErrTooManyAttempts):
		d.Error = "Your code has expired. Request a new one."
		h.Views.Render(c, http.StatusBadRequest, ViewEmail, d)
	case errors.Is(err, auth.ErrInvalidEmail):
		d.Error = "Please enter a valid email address."
		h.Views.Render(c, http.StatusBadRequest, ViewEmail, d)
	case errors.As(err, &oe):
		h.errorPage(c, oe.Status(), "Sign-in expired", "Please start again from the application.")
	default:
		h.logErr(c, err, "code flow failed")
		h.errorPage(c, http.StatusInternalServerError, "Something went wrong", "We could not sign you in. Please try again.")
	}
}

type tokenRequest struct {
	GrantType    string `form:"grant_type" binding:"required"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	ClientID     string `form:"client_id"`
	CodeVerifier string `form:"code_verifier"`
	RefreshToken string `form:"refresh_token"`
}

// Token POST /auth/token
func (h *IssuerHandler) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		h.oauthError(c, &auth.Error{Code: auth.CodeInvalidRequest, Description: validation.Message(err)})
		return
	}
	var (
		tokens *auth.Tokens
		err    error
	)
	switch req.GrantType {
	case auth.GrantAuthorizationCode:
		tokens, err = h.Issuer.Exchange(c.Request.Context(), auth.ExchangeRequest{
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			ClientID:     req.ClientID,
			CodeVerifier: req.CodeVerifier,
		})
	case auth.GrantRefreshToken:
		tokens, err = h.Issuer.Refresh(c.Request.Context(), req.RefreshToken, req.ClientID)
	default:
		err = &auth.Error{Code: auth.CodeUnsupportedGrantType, Description: "unsupported grant_type"}
	}
	if err != nil {
		h.oauthError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

type userInfo struct {
	helpers.Subject
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// UserInfo GET /auth/userinfo (bearer)
func (h *IssuerHandler) UserInfo(c *gin.Context) {
	sub, ok := middleware.SubjectFrom(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	info := userInfo{Subject: sub}
	if h.Users != nil {
		u, err := h.Users.GetByID(c.Request.Context(), sub.Properties.ID)
		switch {
		case errors.Is(err, userapp.ErrUserNotFound):
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		case err != nil:
			h.logErr(c, err, "userinfo lookup failed")
			response.Error[any](c, http.StatusInternalServerError, "internal error", nil)
			return
		}
		info.CreatedAt = &u.CreatedAt
	}
	response.Success(c, http.StatusOK, info, "ok", nil)
}

func (h *IssuerHandler) oauthError(c *gin.Context, err error) {
	oe := auth.AsError(err)
	if oe.Code == auth.CodeServerError {
		h.logErr(c, err, "token endpoint failed")
	}
	c.JSON(oe.Status(), oe)
}

func (h *IssuerHandler) errorPage(c *gin.Context, status int, title, message string) {
	h.Views.Render(c, status, ViewError, errorPage{Title: title, Message: message})
}

func (h *IssuerHandler) logErr(c *gin.Context, err error, msg string) {
	if h.Logger == nil {
		return
	}
	h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Warn(msg)
}
