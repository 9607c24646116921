package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RootPath is the root path the route group.
	RootPath = "/"

	// TemplateLoading is the in-progress page, it refreshes itself.
	TemplateLoading = "loading"

	// TemplateError is the terminal error page with a way back home.
	TemplateError = "error"

	// ErrNilAppFatalLogMsg is used if the app, cfg or registry pointer is nil.
	ErrNilAppFatalLogMsg = "app, cfg or registry is nil"
)
