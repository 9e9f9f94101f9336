package techmate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

/*
====================================
CATALOG
====================================
*/

// ListTutorials fetches the tutorial catalog, optionally narrowed by search
// text, featured flag, instructor name, or the caller's own enrollments.
func (c *Client) ListTutorials(ctx context.Context, opts ListTutorialsOptions) ([]Tutorial, error) {
	query := url.Values{}
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}
	if opts.Featured {
		query.Set("featured", "true")
	}
	if opts.Instructor != "" {
		query.Set("instructor", opts.Instructor)
	}
	if opts.Mine {
		query.Set("me", "true")
	}

	var tutorials []Tutorial
	if err := c.do(ctx, http.MethodGet, "/tutorials/", query, nil, "", &tutorials); err != nil {
		return nil, err
	}
	return tutorials, nil
}

// GetTutorial fetches one tutorial with its content list and, for an
// authenticated caller, their progress.
func (c *Client) GetTutorial(ctx context.Context, id int64) (*Tutorial, error) {
	var tutorial Tutorial
	path := fmt.Sprintf("/tutorials/%d/", id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "", &tutorial); err != nil {
		return nil, err
	}
	return &tutorial, nil
}

// MyTutorials lists the tutorials owned by the logged-in instructor.
func (c *Client) MyTutorials(ctx context.Context) ([]Tutorial, error) {
	var tutorials []Tutorial
	if err := c.do(ctx, http.MethodGet, "/tutorials/mine/", nil, nil, "", &tutorials); err != nil {
		return nil, err
	}
	return tutorials, nil
}

// GetDashboard fetches the learner dashboard: aggregate stats plus the
// per-tutorial progress rows behind them.
func (c *Client) GetDashboard(ctx context.Context) (*Dashboard, error) {
	var dashboard Dashboard
	if err := c.do(ctx, http.MethodGet, "/tutorials/dashboard/", nil, nil, "", &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

/*
====================================
AUTHORING
====================================
*/

// CreateTutorial creates a tutorial owned by the logged-in instructor. The
// request is multipart so the thumbnail can ride along with the fields.
func (c *Client) CreateTutorial(ctx context.Context, input TutorialInput) (*Tutorial, error) {
	body, contentType, err := multipartBody(tutorialFields(input, false), map[string]*FileUpload{
		"thumbnail": input.Thumbnail,
	})
	if err != nil {
		return nil, err
	}
	var tutorial Tutorial
	if err := c.do(ctx, http.MethodPost, "/tutorials/", nil, body, contentType, &tutorial); err != nil {
		return nil, err
	}
	return &tutorial, nil
}

// UpdateTutorial partially updates a tutorial. Zero-value fields are left
// out of the request and keep their server-side value.
func (c *Client) UpdateTutorial(ctx context.Context, id int64, input TutorialInput) (*Tutorial, error) {
	body, contentType, err := multipartBody(tutorialFields(input, true), map[string]*FileUpload{
		"thumbnail": input.Thumbnail,
	})
	if err != nil {
		return nil, err
	}
	var tutorial Tutorial
	path := fmt.Sprintf("/tutorials/%d/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, contentType, &tutorial); err != nil {
		return nil, err
	}
	return &tutorial, nil
}

// DeleteTutorial removes a tutorial and its contents.
func (c *Client) DeleteTutorial(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/tutorials/%d/", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", nil)
}

func tutorialFields(input TutorialInput, partial bool) map[string]string {
	fields := make(map[string]string, 3)
	if input.Title != "" || !partial {
		fields["title"] = input.Title
	}
	if input.Description != "" || !partial {
		fields["description"] = input.Description
	}
	if input.IsFeatured != nil {
		fields["is_featured"] = strconv.FormatBool(*input.IsFeatured)
	}
	return fields
}

/*
====================================
CONTENT AUTHORING
====================================
*/

// CreateContent adds a lesson to a tutorial. Video and audio lessons carry
// their media file in the same multipart request.
func (c *Client) CreateContent(ctx context.Context, tutorialID int64, input ContentInput) (*TutorialContent, error) {
	body, contentType, err := multipartBody(contentFields(input, false), map[string]*FileUpload{
		"file": input.File,
	})
	if err != nil {
		return nil, err
	}
	var content TutorialContent
	path := fmt.Sprintf("/tutorials/%d/contents/", tutorialID)
	if err := c.do(ctx, http.MethodPost, path, nil, body, contentType, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// UpdateContent partially updates a lesson.
func (c *Client) UpdateContent(ctx context.Context, contentID int64, input ContentInput) (*TutorialContent, error) {
	body, contentType, err := multipartBody(contentFields(input, true), map[string]*FileUpload{
		"file": input.File,
	})
	if err != nil {
		return nil, err
	}
	var content TutorialContent
	path := fmt.Sprintf("/tutorials/contents/%d/", contentID)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, contentType, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// DeleteContent removes a lesson from its tutorial.
func (c *Client) DeleteContent(ctx context.Context, contentID int64) error {
	path := fmt.Sprintf("/tutorials/contents/%d/", contentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", nil)
}

func contentFields(input ContentInput, partial bool) map[string]string {
	fields := make(map[string]string, 6)
	if input.Title != "" || !partial {
		fields["title"] = input.Title
	}
	if input.Description != "" {
		fields["description"] = input.Description
	}
	if input.ContentType != "" || !partial {
		fields["content_type"] = string(input.ContentType)
	}
	if input.Order > 0 || !partial {
		fields["order"] = strconv.Itoa(input.Order)
	}
	if input.Text != "" {
		fields["text"] = input.Text
	}
	if input.Duration != nil {
		fields["duration"] = strconv.Itoa(*input.Duration)
	}
	return fields
}
