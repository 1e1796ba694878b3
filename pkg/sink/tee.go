package sink

import (
	"context"
	"errors"
	"strings"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
)

type teeOutput []Output

// Tee fans every call out to outputs in order. Append stops at the first error.
func Tee(outputs ...Output) Output {
	if len(outputs) == 1 {
		return outputs[0]
	}
	return teeOutput(outputs)
}

func (t teeOutput) Begin(ctx context.Context) error {
	for _, o := range t {
		if err := o.Begin(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t teeOutput) Append(ctx context.Context, page int, rows []listing.Listing) error {
	for _, o := range t {
		if err := o.Append(ctx, page, rows); err != nil {
			return err
		}
	}
	return nil
}

func (t teeOutput) Location() string {
	locs := make([]string, 0, len(t))
	for _, o := range t {
		locs = append(locs, o.Location())
	}
	return strings.Join(locs, ", ")
}

func (t teeOutput) Close() error {
	var errs []error
	for _, o := range t {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}
