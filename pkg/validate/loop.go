// Package validate implements the per-item validation loop shared by the
// validation nodes.
//
// Items are processed strictly in order. Each item's rules are evaluated in
// order until one fails; a failing item is either tagged with an "error" field
// and passed on, or halts the whole run, depending on the host's
// continue-on-fail setting.
package validate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/Themis/pkg/logging"
	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/schema"
)

// Run validates every item the host provides against the item's rules, using
// compiler to turn schema text into validators.
//
// Blank rules are skipped. Compile failures, validation failures and rule
// configuration errors are handled alike. With continue-on-fail the output
// holds one item per input item; otherwise the first failure is returned as
// the host's scoped error and no items are returned.
func Run(ctx context.Context, host node.Host, compiler schema.Compiler, opts Options) ([]node.Item, error) {
	opts = opts.withDefaults()
	items := host.Items()
	continueOnFail := host.ContinueOnFail()

	ctx, span := opts.Tracer.Start(ctx, "validate.Run", trace.WithAttributes(
		attribute.Int("items.count", len(items)),
		attribute.Bool("continue_on_fail", continueOnFail),
	))
	defer span.End()

	out := make([]node.Item, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			scoped := host.ScopedError(err, i)
			span.RecordError(scoped)
			span.SetStatus(codes.Error, "run cancelled")
			return nil, scoped
		}

		start := time.Now()
		err := validateItem(host, compiler, opts, i, item)
		if err == nil {
			opts.Metrics.RecordPassed(time.Since(start).Nanoseconds())
			out = append(out, item)
			continue
		}

		opts.Metrics.RecordFailed()
		span.AddEvent("item.failed", trace.WithAttributes(
			attribute.Int("item.index", i),
			attribute.String("error", err.Error()),
		))

		if continueOnFail {
			opts.Logger.Warn("Item failed validation",
				logging.F("itemIndex", i),
				logging.F("error", err))
			out = append(out, item.WithError(i, err.Error()))
			continue
		}

		opts.Logger.Error("Item failed validation, halting run",
			logging.F("itemIndex", i),
			logging.F("error", err))
		scoped := host.ScopedError(err, i)
		span.RecordError(scoped)
		span.SetStatus(codes.Error, err.Error())
		return nil, scoped
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// validateItem evaluates the item's rules in order and returns the first failure.
func validateItem(host node.Host, compiler schema.Compiler, opts Options, itemIndex int, item node.Item) error {
	rules, err := host.RuleConfig(itemIndex)
	if err != nil {
		return err
	}

	for r, rule := range rules {
		if rule.IsBlank() {
			opts.Metrics.RecordSkipped()
			opts.Logger.Debug("Skipping blank rule",
				logging.F("itemIndex", itemIndex),
				logging.F("rule", r))
			continue
		}

		validator, err := compiler.Compile(rule.ValidationSchema)
		if err != nil {
			return err
		}
		if err := validator.Validate(opts.Resolve(item, rule)); err != nil {
			return err
		}
	}
	return nil
}
