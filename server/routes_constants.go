package server

// Route path constants
const (
	// Page load and OAuth callback
	RouteIndex   = "/{$}"
	RouteConnect = "/connect"

	// API Routes
	RouteAPIStatus     = "/api/status"
	RouteAPICourses    = "/api/courses"
	RouteAPIOpenCourse = "/api/courses/{id}/open"
	RouteAPIDataset    = "/api/dataset"
	RouteAPITap        = "/api/tap"
	RouteAPIMode       = "/api/mode"
	RouteAPINotices    = "/api/notices"
	RouteAPINotice     = "/api/notices/{id}"
	RouteAPIDisconnect = "/api/disconnect"
)
