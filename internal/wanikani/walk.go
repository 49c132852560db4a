package wanikani

import (
	"context"
	"errors"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// WalkSubjects fetches every page of /subjects matching q.
//
// fn is called once per page, in order, before the next page is requested.
// Records of unsupported kinds are dropped from the page and counted in
// Page.Skipped.
// A non-nil error from fn or from a request stops the walk and is returned;
// pages already handed to fn are not revisited.
func (c *Client) WalkSubjects(ctx context.Context, q SubjectsQuery, fn func(Page[schema.Subject]) error) error {
	return walk(ctx, c, "/subjects", q.Values(), "subject", subjectFromResource, fn)
}

// WalkAssignments fetches every page of /assignments matching q.
// Paging semantics match WalkSubjects.
func (c *Client) WalkAssignments(ctx context.Context, q AssignmentsQuery, fn func(Page[schema.Assignment]) error) error {
	return walk(ctx, c, "/assignments", q.Values(), "assignment", assignmentFromResource, fn)
}

func walk[D, T any](
	ctx context.Context,
	c *Client,
	path string,
	query url.Values,
	object string,
	convert func(resource[D]) (T, error),
	fn func(Page[T]) error,
) error {
	next := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		next += "?" + encoded
	}

	for number := 1; next != ""; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var coll collection[D]
		if err := c.get(ctx, next, &coll); err != nil {
			return err
		}
		if coll.Object != "collection" {
			return malformed("expected collection from %s, got %q", redact(next), coll.Object)
		}

		page := Page[T]{
			Number:     number,
			TotalCount: coll.TotalCount,
			Items:      make([]T, 0, len(coll.Data)),
		}
		for _, res := range coll.Data {
			item, err := convert(res)
			if errors.Is(err, ErrUnsupported) {
				page.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			page.Items = append(page.Items, item)
		}
		if coll.Pages.NextURL != nil {
			page.NextURL = *coll.Pages.NextURL
		}

		c.logger.WithFields(logrus.Fields{
			"object":  object,
			"page":    number,
			"items":   len(page.Items),
			"skipped": page.Skipped,
			"total":   coll.TotalCount,
		}).Debug("fetched page")

		if err := fn(page); err != nil {
			return err
		}
		next = page.NextURL
	}
	return nil
}
