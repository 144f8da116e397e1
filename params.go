package oauthclient

import (
	"net/url"

	"github.com/giantswarm/oauth-client/internal/jsonutil"
)

// checkAdditionalParams returns a copy of params containing only entries
// with non-empty keys and values, failing if any key collides with one of
// the message type's built-in parameter names. Every protocol message can
// carry forward arbitrary server or extension parameters, but never ones
// this layer interprets itself.
func checkAdditionalParams(params map[string]string, builtIn map[string]struct{}) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "" || v == "" {
			continue
		}
		if _, reserved := builtIn[k]; reserved {
			return nil, &ArgumentError{Field: k, Reason: "additional parameter keys must not conflict with built-in parameters"}
		}
		out[k] = v
	}
	return out, nil
}

// extraParamsFromQuery collects the query parameters of a redirect URI that
// are not built-in for the message type. Repeated parameters keep their
// first value.
func extraParamsFromQuery(values url.Values, builtIn map[string]struct{}) map[string]string {
	out := make(map[string]string)
	for k, vs := range values {
		if _, reserved := builtIn[k]; reserved {
			continue
		}
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		out[k] = vs[0]
	}
	return out
}

// extraParamsFromJSON collects the scalar members of a JSON object that are
// not built-in for the message type. Nested values are ignored; OAuth
// extension parameters are defined as scalars.
func extraParamsFromJSON(obj jsonutil.Object, builtIn map[string]struct{}) map[string]string {
	out := make(map[string]string)
	for k, v := range obj {
		if _, reserved := builtIn[k]; reserved {
			continue
		}
		s, err := jsonutil.Stringify(v)
		if err != nil || s == "" {
			continue
		}
		out[k] = s
	}
	return out
}

func paramSet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
