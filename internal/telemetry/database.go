package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	spanKey = "otel:span"
)

// GORMTracingPlugin returns a GORM plugin that opens a span around every
// gorm statement the service issues. Raw SELECTs run through the row
// callback.
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	errs := []error{
		cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT")),
		cb.Query().After("gorm:query").Register("telemetry:after_query", p.after),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", p.before("ROW")),
		cb.Row().After("gorm:row").Register("telemetry:after_row", p.after),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("EXEC")),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.after),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT")),
		cb.Create().After("gorm:create").Register("telemetry:after_create", p.after),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE")),
		cb.Update().After("gorm:update").Register("telemetry:after_update", p.after),
	}
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to register tracing callback: %w", err)
		}
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, db.Dialector.Name()),
				attribute.String(dbTableKey, table),
				attribute.String(dbOperationKey, operation),
			),
		)
		db.InstanceSet(spanKey, span)
	}
}

func (p *tracingPlugin) after(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > 500 {
			sql = sql[:500] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
