// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"strings"

	"github.com/trashgate/trashgate/pkg/gateway/data"
)

const FilterTypeParser = "ParserFilter"

// ParserFilter classifies the request's path into a storage scope. Paths
// outside the /v1 namespace (service info, health checks) leave the scope nil
// and pass through untouched.
type ParserFilter struct{}

func NewParserFilter() *ParserFilter {
	return &ParserFilter{}
}

func (f *ParserFilter) Run(d *data.Data) (Response, error) {
	if d.Ctx.Err() != nil {
		return nil, d.Ctx.Err()
	}

	d.Scope, _ = ParseScope(d.Req.URL.Path)

	return Next{}, nil
}

func (f *ParserFilter) Type() string {
	return FilterTypeParser
}

// ParseScope splits a backend path of the form
// /v1/<account>[/<container>[/<object>]] into its scope. The object segment
// takes the rest of the path, slashes included. The second return is false
// for paths that do not address the storage namespace.
func ParseScope(path string) (*data.Scope, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 3)

	if parts[0] != "v1" || len(parts) < 2 || parts[1] == "" {
		return nil, false
	}

	scope := &data.Scope{Account: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		scope.Container, scope.Object, _ = strings.Cut(parts[2], "/")
	}
	return scope, true
}
