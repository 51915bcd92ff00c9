package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/authgate/authgate"
	"github.com/authgate/authgate/audit"
	"github.com/authgate/authgate/device"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type tokenResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	SessionID    string      `json:"sessionId"`
	User         *userResult `json:"user,omitempty"`
}

type userResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// notFoundMessage is shared by every credential-failure branch of
// login. An unknown email, an unknown one-time password, and a wrong
// password must be indistinguishable to the caller.
const notFoundMessage = "Resource not found"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}
	identifier := req.Email

	ip := device.ClientIP(r)
	fingerprint := device.Fingerprint(r)

	if s.limiter != nil {
		if err := s.limiter.Check(r.Context(), identifier, ip); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				s.emitAudit(r.Context(), audit.Event{
					EventType:   audit.EventLoginThrottled,
					Fingerprint: fingerprint,
					IP:          ip,
				})
				respondError(w, http.StatusTooManyRequests, "Too many login attempts")
				return
			}
			s.logger.Error("login throttle check failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	user, ok := s.authenticate(w, r, req, identifier, ip, fingerprint)
	if !ok {
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(r.Context(), identifier, ip); err != nil {
			s.logger.Warn("login throttle reset failed", "error", err)
		}
	}

	result, ok := s.establishSession(w, r, user, fingerprint, audit.EventLogin)
	if !ok {
		return
	}
	result.User = &userResult{ID: user.ID, Email: user.Email, Role: user.Role}

	respond(w, http.StatusOK, "Login successful", result)
}

// authenticate resolves the login request to a user, writing the failure
// response itself when the credentials do not hold. Both the OTP and the
// password branch fail with the same status and message.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, req loginRequest, identifier, ip, fingerprint string) (*authgate.User, bool) {
	fail := func(reason string) (*authgate.User, bool) {
		s.recordFailure(r.Context(), identifier, ip)
		s.emitAudit(r.Context(), audit.Event{
			EventType:   audit.EventLoginDenied,
			Fingerprint: fingerprint,
			IP:          ip,
			Error:       reason,
		})
		respondError(w, http.StatusNotFound, notFoundMessage)
		return nil, false
	}

	if req.OTP != "" {
		user, err := s.users.Get(r.Context(), authgate.UserFilter{Email: req.Email, OTP: req.OTP})
		if err != nil {
			if errors.Is(err, authgate.ErrUserNotFound) {
				return fail("unknown otp")
			}
			s.logger.Error("user lookup failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return nil, false
		}

		// The OTP is single-use. A failed clear is logged, not fatal;
		// the credential stays burned from the caller's perspective.
		cleared := *user
		cleared.OTP = ""
		if err := s.users.Update(r.Context(), &cleared); err != nil {
			s.logger.Error("otp clear failed", "user_id", user.ID, "error", err)
		}
		return user, true
	}

	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "Password is required")
		return nil, false
	}

	user, err := s.users.Get(r.Context(), authgate.UserFilter{Email: req.Email})
	if err != nil {
		if errors.Is(err, authgate.ErrUserNotFound) {
			return fail("unknown email")
		}
		s.logger.Error("user lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	match, err := s.verifier.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	if !match {
		return fail("wrong password")
	}

	return user, true
}

func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := authgate.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := s.users.Get(r.Context(), authgate.UserFilter{ID: identity.Claims.UserID()})
	if err != nil {
		if errors.Is(err, authgate.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, notFoundMessage)
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Rotation invalidates every outstanding session for the user, so a
	// stolen refresh token stops working the moment the owner rotates.
	if _, err := s.sessions.RevokeAllForUser(r.Context(), user.ID); err != nil {
		s.logger.Error("session revocation failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	fingerprint := device.Fingerprint(r)
	result, ok := s.establishSession(w, r, user, fingerprint, audit.EventTokenExchange)
	if !ok {
		return
	}

	respond(w, http.StatusOK, "Token exchanged", result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := authgate.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	userID := identity.Claims.UserID()
	fingerprint := device.Fingerprint(r)

	sess, err := s.sessions.FindByDevice(r.Context(), userID, fingerprint)
	if err != nil {
		s.logger.Error("session lookup failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if sess != nil {
		if _, err := s.sessions.Revoke(r.Context(), sess.ID); err != nil {
			s.logger.Error("session revocation failed", "session_id", sess.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	s.clearAuthCookies(w)
	s.emitAudit(r.Context(), audit.Event{
		EventType:   audit.EventLogout,
		UserID:      userID,
		Fingerprint: fingerprint,
		IP:          device.ClientIP(r),
		Success:     true,
	})
	respond(w, http.StatusOK, "Logged out", nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := authgate.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := s.users.Get(r.Context(), authgate.UserFilter{ID: identity.Claims.UserID()})
	if err != nil {
		if errors.Is(err, authgate.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, notFoundMessage)
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(w, http.StatusOK, "", &userResult{ID: user.ID, Email: user.Email, Role: user.Role})
}

// establishSession signs a fresh token pair, upserts the device session,
// and sets the auth cookies. On failure it writes the error response and
// returns ok=false.
func (s *Server) establishSession(w http.ResponseWriter, r *http.Request, user *authgate.User, fingerprint, eventType string) (*tokenResult, bool) {
	accessToken, err := s.codec.Sign(
		s.claims(user, s.cfg.JWT.Audience),
		s.cfg.JWT.AccessTTL,
	)
	if err != nil {
		s.logger.Error("access token signing failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	refreshToken, err := s.codec.Sign(
		s.claims(user, s.cfg.JWT.RefreshAudience),
		s.cfg.JWT.RefreshTTL,
	)
	if err != nil {
		s.logger.Error("refresh token signing failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	sessionID, err := s.sessions.Login(r.Context(), user.ID, fingerprint, device.Describe(r), accessToken, refreshToken)
	if err != nil {
		s.logger.Error("session creation failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	s.setAuthCookies(w, accessToken, refreshToken)
	s.emitAudit(r.Context(), audit.Event{
		EventType:   eventType,
		UserID:      user.ID,
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		IP:          device.ClientIP(r),
		Success:     true,
	})

	return &tokenResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
	}, true
}

func (s *Server) claims(user *authgate.User, audience string) jwt.Claims {
	return jwt.NewClaims(user.ID, user.Email, user.Role, audience)
}

func (s *Server) recordFailure(ctx context.Context, identifier, ip string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Record(ctx, identifier, ip); err != nil && !errors.Is(err, ratelimit.ErrRateLimited) {
		s.logger.Warn("login throttle record failed", "error", err)
	}
}

func (s *Server) emitAudit(ctx context.Context, event audit.Event) {
	s.auditor.Emit(ctx, event)
}
