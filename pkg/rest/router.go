package rest

import (
	"fmt"
	"net/http"
	"strings"
)

// Binding maps an HTTP method of a route to the action serving it.
type Binding struct {
	Method string
	Action string
}

// Route is one URL of a resource and the actions bound to it.
type Route struct {
	Name     string
	Path     string
	Resource string
	Detail   bool
	Bindings []Binding

	handlers map[string]ActionFunc
	perms    map[string][]Permission
}

// Methods lists the bound methods in binding order.
func (r Route) Methods() []string {
	methods := make([]string, len(r.Bindings))
	for i, b := range r.Bindings {
		methods[i] = b.Method
	}
	return methods
}

// Allow is the Allow header of the route.
func (r Route) Allow() string {
	methods := r.Methods()
	for _, m := range methods {
		if m == http.MethodGet {
			methods = append(methods, http.MethodHead)
			break
		}
	}
	return strings.Join(append(methods, http.MethodOptions), ", ")
}

func (r *Route) bind(method, action string, fn ActionFunc, perms []Permission) {
	r.Bindings = append(r.Bindings, Binding{Method: method, Action: action})
	if r.handlers == nil {
		r.handlers = make(map[string]ActionFunc)
		r.perms = make(map[string][]Permission)
	}
	r.handlers[action] = fn
	r.perms[action] = perms
}

// hyphenate turns an action name into its route name form.
func hyphenate(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// routes lays out the URLs of res in registration order:
//
//	{prefix}/                  list, create
//	{prefix}/{action}/         list actions
//	{prefix}/{lookup}/         retrieve, update, partial_update, destroy
//	{prefix}/{lookup}/{action}/ detail actions
//
// Routes with no bound action are left out.
func (s *Server) routes(res *resource) []Route {
	slash := ""
	if s.trailingSlash {
		slash = "/"
	}
	base := "/" + res.Prefix
	detail := fmt.Sprintf("%s/{%s}", base, res.lookup)

	list := Route{Name: res.Name + "-list", Path: base + slash, Resource: res.Name}
	for _, b := range []Binding{
		{http.MethodGet, ActionList},
		{http.MethodPost, ActionCreate},
	} {
		if res.enabled(b.Action) {
			list.bind(b.Method, b.Action, standardHandler(b.Action), res.permissions)
		}
	}

	obj := Route{Name: res.Name + "-detail", Path: detail + slash, Resource: res.Name, Detail: true}
	for _, b := range []Binding{
		{http.MethodGet, ActionRetrieve},
		{http.MethodPut, ActionUpdate},
		{http.MethodPatch, ActionPartialUpdate},
		{http.MethodDelete, ActionDestroy},
	} {
		if res.enabled(b.Action) {
			obj.bind(b.Method, b.Action, standardHandler(b.Action), res.permissions)
		}
	}

	var listActions, detailActions []Route
	for _, a := range res.Actions {
		perms := a.Permissions
		if perms == nil {
			perms = res.permissions
		}
		route := Route{
			Name:     res.Name + "-" + hyphenate(a.urlPath()),
			Resource: res.Name,
			Detail:   a.Detail,
		}
		for _, m := range a.methods() {
			route.bind(m, a.Name, a.Handler, perms)
		}
		if a.Detail {
			route.Path = detail + "/" + a.urlPath() + slash
			detailActions = append(detailActions, route)
		} else {
			route.Path = base + "/" + a.urlPath() + slash
			listActions = append(listActions, route)
		}
	}

	var out []Route
	if len(list.Bindings) > 0 {
		out = append(out, list)
	}
	out = append(out, listActions...)
	if len(obj.Bindings) > 0 {
		out = append(out, obj)
	}
	return append(out, detailActions...)
}

// muxPattern anchors paths ending in a slash so they do not match subtrees.
func muxPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}
