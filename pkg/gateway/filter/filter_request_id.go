// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	rcontext "github.com/trashgate/trashgate/pkg/context"
	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/logger"
)

const (
	FilterTypeRequestID = "RequestIDFilter"

	// HeaderRequestID tags every request for log correlation across the
	// gateway and the backend.
	HeaderRequestID = "X-Trans-Id"
)

type RequestIDFilter struct {
	counter atomic.Uint64
	prefix  string
}

func NewRequestIDFilter() *RequestIDFilter {
	return &RequestIDFilter{
		prefix: uuid.New().String()[0:8],
	}
}

func (f *RequestIDFilter) Run(d *data.Data) (Response, error) {
	if d.Ctx.Err() != nil {
		return nil, d.Ctx.Err()
	}

	// Keep an id assigned by an earlier proxy hop
	id := d.Req.Header.Get(HeaderRequestID)
	if id == "" {
		id = f.generateRequestID()
		d.Req.Header.Set(HeaderRequestID, id)
	}

	// Carry the id in the context and tag the request-scoped logger with it.
	d.Ctx = rcontext.FromUUID(d.Ctx, id)
	l := logger.Ctx(d.Ctx).With().Str("trans_id", id).Logger()
	d.Ctx = logger.WithLogger(d.Ctx, &l)

	return Next{}, nil
}

func (f *RequestIDFilter) generateRequestID() string {
	return "tx" + f.prefix + "-" + strconv.FormatUint(f.counter.Add(1), 10)
}

func (f *RequestIDFilter) Type() string {
	return FilterTypeRequestID
}
