// Package router resolves request paths to backend services.
//
// Services are tried in configuration order and the first prefix that
// matches on a path segment boundary wins. The prefix is stripped from the
// forwarded path; a request for the bare prefix is forwarded as "/".
//
// # Usage
//
//	r := router.NewResolver(cfg.Services, nil)
//	if m, ok := r.Resolve("/api/social/friends"); ok {
//	    // m.ServiceName == "social", m.TargetPath == "/friends"
//	}
package router
