package pipeline

import "sort"

// Authorizer decides whether a claimed feeder identity may submit reports.
type Authorizer interface {
	Authorize(source string) bool
}

// AuthorizerFunc adapts a plain function to Authorizer.
type AuthorizerFunc func(source string) bool

func (f AuthorizerFunc) Authorize(source string) bool { return f(source) }

// AllowList authorizes sources by exact, case-sensitive membership.
type AllowList struct {
	sources map[string]struct{}
}

func NewAllowList(sources ...string) *AllowList {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &AllowList{sources: set}
}

func (a *AllowList) Authorize(source string) bool {
	_, ok := a.sources[source]
	return ok
}

func (a *AllowList) Sources() []string {
	out := make([]string, 0, len(a.sources))
	for s := range a.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
