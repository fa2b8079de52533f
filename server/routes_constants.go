package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Auth Routes
	RouteLogin    = "/login"
	RouteCallback = "/oauth2/callback"
	RouteLogout   = "/logout"
	RouteActive   = "/active"

	// Document upload proof of concept
	RouteUploadPage     = "/uploadDocPoc/page2"
	RouteUploadDocument = "/uploadDocPoc/page2/uploadDocument"
	RouteSubmitDocument = "/uploadDocPoc/page2/submitDocument"

	// Operational Routes
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteAssets = "/assets/{file}"
)
