package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Public entry (sign-in screen)
	RouteIndex = "/{$}"

	// Auth Routes
	RouteAuthLogin  = "/auth/login"
	RouteAuthSignup = "/auth/signup"
	RouteAuthLogout = "/auth/logout"

	// Session snapshot for the device shell
	RouteSession = "/session"

	// Protected screen groups
	RouteAdminScreen     = "/admin/{screen}"
	RouteSurveyorsScreen = "/surveyors/{screen}"
	RouteUsersScreen     = "/users/{screen}"

	// Admin member management
	RouteAdminUsers = "/admin/users"
)
