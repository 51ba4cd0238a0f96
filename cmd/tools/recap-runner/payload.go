package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recaps/internal/ingress"
)

// options mirrors the command-line flags.
type options struct {
	create       string
	kind         string
	report       int64
	user         int64
	pageOffset   int
	logID        int64
	rebuild      bool
	incremental  bool
	emails       bool
	sweep        bool
	staleMinutes int
	sendEmail    bool
}

// buildPayload turns flags into a direct-invocation payload and checks it
// decodes to a request.
func buildPayload(o options) ([]byte, ingress.Request, error) {
	p := map[string]any{}

	switch {
	case o.create != "":
		if _, err := time.Parse(time.DateOnly, o.create); err != nil {
			return nil, nil, fmt.Errorf("-create must be YYYY-MM-DD: %w", err)
		}
		p["reportDate"] = o.create
		if o.kind != "" {
			p["kind"] = o.kind
		}
	case o.user > 0:
		p["userId"] = o.user
		if o.report > 0 {
			p["reportId"] = o.report
		}
		if o.sendEmail {
			p["sendEmail"] = true
		}
	case o.report <= 0:
		return nil, nil, errors.New("-report is required unless -create or -user is set")
	case o.logID > 0 && o.pageOffset < 0:
		return nil, nil, errors.New("-log requires -page-offset; the worker checks the log's offset")
	case o.pageOffset >= 0:
		p["batch"] = true
		p["reportId"] = o.report
		p["offset"] = o.pageOffset
		if o.logID > 0 {
			p["logId"] = o.logID
		}
		if o.rebuild {
			p["rebuild"] = true
		}
	case o.incremental:
		p["incremental"] = true
		p["reportId"] = o.report
	case o.emails:
		p["emails"] = true
		p["reportId"] = o.report
	case o.sweep:
		p["sweep"] = true
		p["reportId"] = o.report
		if o.staleMinutes > 0 {
			p["staleAfterMinutes"] = o.staleMinutes
		}
	default:
		p["reportId"] = o.report
		if o.rebuild {
			p["rebuild"] = true
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	req, err := ingress.Decode(body)
	if err != nil {
		return nil, nil, err
	}
	return body, req, nil
}
