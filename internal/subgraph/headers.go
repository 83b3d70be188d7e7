// Package subgraph is the per-subgraph client implementing the §4.F
// three-verb contract (execute_query, execute_subscription_ws,
// execute_subscription_sse) and the header-rule application they all
// share, none of which are part of the teacher's original request flow.
package subgraph

import "net/http"

// HeaderRule describes how outgoing subgraph request headers are
// derived from the incoming client request. Rules apply in a fixed
// order, operating on the incoming headers: remove, then insert, then
// forward — never the other way. Remove first strips headers from the
// incoming set so a removed-and-forwarded header never reaches the
// subgraph; insert unconditionally sets headers on the outgoing
// request, independent of Forward; forward applies last and is the
// authoritative selection, so a forwarded header always wins over an
// insert of the same name.
type HeaderRule struct {
	Remove  []string
	Insert  map[string]string
	Forward []string
}

// Apply builds the outgoing header set for one subgraph request from
// the incoming client request's headers.
func (r HeaderRule) Apply(incoming http.Header) http.Header {
	remaining := incoming.Clone()
	if remaining == nil {
		remaining = make(http.Header)
	}
	for _, name := range r.Remove {
		remaining.Del(name)
	}

	out := make(http.Header)
	for k, v := range r.Insert {
		out.Set(k, v)
	}

	for _, name := range r.Forward {
		if v := remaining.Values(name); len(v) > 0 {
			out.Del(name)
			for _, vv := range v {
				out.Add(name, vv)
			}
		}
	}

	return out
}
