// Package navigation builds the page title, breadcrumbs and the role filtered menu.
package navigation

import "github.com/adminshell/adminshell/internal/session"

// BreadcrumbItem represents a single breadcrumb link.
type BreadcrumbItem struct {
	Title  string
	URL    string
	Active bool
}

// MenuItem is a menu entry. Without roles it is shown to every user.
type MenuItem struct {
	Title string
	URL   string
	Roles []string
}

// Context represents the navigation context for a page.
type Context struct {
	ActivePage  string
	Breadcrumbs []BreadcrumbItem
	PageTitle   string
	Menu        []MenuItem
}

// DefaultMenu is the menu of the shell.
var DefaultMenu = []MenuItem{
	{Title: "Home", URL: "/"},
	{Title: "Session", URL: "/api/session"},
	{Title: "Reports", URL: "/api/reports", Roles: []string{"manager", "admin"}},
	{Title: "Admin ping", URL: "/api/admin/ping", Roles: []string{"admin"}},
}

// NewContext creates a new navigation context.
func NewContext(pageTitle, activePage string) *Context {
	return &Context{
		PageTitle:   pageTitle,
		ActivePage:  activePage,
		Breadcrumbs: make([]BreadcrumbItem, 0),
		Menu:        make([]MenuItem, 0),
	}
}

// AddBreadcrumb adds a breadcrumb item to the context.
func (c *Context) AddBreadcrumb(title, url string, active bool) *Context {
	c.Breadcrumbs = append(c.Breadcrumbs, BreadcrumbItem{
		Title:  title,
		URL:    url,
		Active: active,
	})

	return c
}

// WithMenu keeps the items of menu s may see.
func (c *Context) WithMenu(menu []MenuItem, s *session.Session) *Context {
	for _, item := range menu {
		if len(item.Roles) == 0 || s.HasAnyRole(item.Roles...) {
			c.Menu = append(c.Menu, item)
		}
	}

	return c
}

// IsActive checks if the given page is the current one.
func (c *Context) IsActive(page string) bool {
	return c.ActivePage == page
}
