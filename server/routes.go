package server

import (
	"net/http"

	"github.com/jrsteele09/qsmate/guard"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.ScreenMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.ScreenMiddleware()...))

	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.ScreenMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthSignup, ChainMiddleware(s.SignupSubmissionHandler(), s.ScreenMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.ScreenMiddleware()...))

	// Protected screen groups: each one only mounts for its own role
	s.RegisterRouteHandler("GET "+RouteAdminScreen, ChainMiddleware(s.ScreenHandler(guard.GroupAdmin), s.ScreenMiddleware(s.RequireMount(guard.GroupAdmin))...))
	s.RegisterRouteHandler("GET "+RouteSurveyorsScreen, ChainMiddleware(s.ScreenHandler(guard.GroupSurveyors), s.ScreenMiddleware(s.RequireMount(guard.GroupSurveyors))...))
	s.RegisterRouteHandler("GET "+RouteUsersScreen, ChainMiddleware(s.ScreenHandler(guard.GroupUsers), s.ScreenMiddleware(s.RequireMount(guard.GroupUsers))...))

	// Admin member management
	s.RegisterRouteHandler("GET "+RouteAdminUsers, ChainMiddleware(s.MembersListHandler(), s.ScreenMiddleware(s.RequireMount(guard.GroupAdmin))...))
	s.RegisterRouteHandler("POST "+RouteAdminUsers, ChainMiddleware(s.AddMemberHandler(), s.ScreenMiddleware(s.RequireMount(guard.GroupAdmin))...))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(http.NotFound, s.CorsMiddleware))
}
