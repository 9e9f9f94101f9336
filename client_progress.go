package techmate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GetProgress fetches the caller's completion record for one tutorial. A
// tutorial never started reads as zero progress, not an error.
func (c *Client) GetProgress(ctx context.Context, tutorialID int64) (*Progress, error) {
	var progress Progress
	path := fmt.Sprintf("/tutorials/%d/progress/", tutorialID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "", &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// UpdateProgress replaces the set of completed lessons for one tutorial and
// returns the recomputed record. The server owns the percentage and the
// completed flag; the client only ever sends the id set.
func (c *Client) UpdateProgress(ctx context.Context, tutorialID int64, completedContentIDs []int64) (*Progress, error) {
	if completedContentIDs == nil {
		completedContentIDs = []int64{}
	}
	body, err := json.Marshal(map[string][]int64{
		"completed_content_ids": completedContentIDs,
	})
	if err != nil {
		return nil, err
	}

	var progress Progress
	path := fmt.Sprintf("/tutorials/%d/progress/", tutorialID)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, contentTypeJSON, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
