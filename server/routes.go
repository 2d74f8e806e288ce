package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteConnect, ChainMiddleware(s.ConnectHandler(), s.HTMLMiddleWare()...))

	s.RegisterRouteHandler("GET "+RouteAPIStatus, ChainMiddleware(s.StatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPICourses, ChainMiddleware(s.CoursesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIOpenCourse, ChainMiddleware(s.OpenCourseHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIDataset, ChainMiddleware(s.DatasetHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPITap, ChainMiddleware(s.TapHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIMode, ChainMiddleware(s.GetModeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAPIMode, ChainMiddleware(s.SetModeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPINotices, ChainMiddleware(s.NoticesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAPINotice, ChainMiddleware(s.DismissNoticeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIDisconnect, ChainMiddleware(s.DisconnectHandler(), s.APIMiddleware()...))
}
