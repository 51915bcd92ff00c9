package httpapi

import (
	"net/http"
	"time"
)

// setAuthCookies installs the access and refresh token cookies. Both are
// HttpOnly and SameSite=Lax; Secure is tied to production mode so local
// development over plain HTTP still works.
func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, s.authCookie(s.cfg.Cookies.AccessName, accessToken, s.cfg.JWT.AccessTTL))
	http.SetCookie(w, s.authCookie(s.cfg.Cookies.RefreshName, refreshToken, s.cfg.JWT.RefreshTTL))
}

// clearAuthCookies expires both token cookies.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.expiredCookie(s.cfg.Cookies.AccessName))
	http.SetCookie(w, s.expiredCookie(s.cfg.Cookies.RefreshName))
}

func (s *Server) authCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.HTTP.Production,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.HTTP.Production,
		SameSite: http.SameSiteLaxMode,
	}
}
