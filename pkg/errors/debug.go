package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// ErrorDump flattens an error chain into loggable fields. It is never sent
// to clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	Cause      string   `json:"cause,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`

	GatewayCode      string `json:"gateway_code,omitempty"`
	GatewayDecline   string `json:"gateway_decline,omitempty"`
	GatewayRequestID string `json:"gateway_request_id,omitempty"`
	GatewayStatus    int    `json:"gateway_status,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		d.Cause = "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		d.Cause = "canceled"
	case errors.Is(err, gorm.ErrRecordNotFound):
		d.Cause = "record_not_found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		d.Cause = "duplicate_key"
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		d.GatewayCode = string(stripeErr.Code)
		d.GatewayDecline = string(stripeErr.DeclineCode)
		d.GatewayRequestID = stripeErr.RequestID
		d.GatewayStatus = stripeErr.HTTPStatusCode
	}
	return d
}

// Fields returns the non-empty parts of the dump keyed for structured logs.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	put := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	put("error_code", string(d.Code))
	put("error_cause", d.Cause)
	put("pg_code", d.PGCode)
	put("pg_constraint", d.PGConstraint)
	put("pg_table", d.PGTable)
	put("pg_detail", d.PGDetail)
	put("gateway_code", d.GatewayCode)
	put("gateway_decline", d.GatewayDecline)
	put("gateway_request_id", d.GatewayRequestID)
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.GatewayStatus != 0 {
		fields["gateway_status"] = d.GatewayStatus
	}
	return fields
}
