package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/report"
)

// Property names on the review board. The target database must define these
// columns; property errors from the API mean the board schema drifted.
const (
	propName        = "Name"
	propLeadID      = "Lead ID"
	propFingerprint = "Fingerprint"
	propCity        = "City"
	propWebsite     = "Website"
	propGate        = "Gate"
	propReason      = "Reason"
	propStatus      = "Status"
)

// statusNeedsReview is the board status for freshly parked leads.
const statusNeedsReview = "Needs Review"

// Board pushes review-queue items onto one Notion database, keyed by
// business fingerprint so repeated pushes update cards instead of
// duplicating them.
type Board struct {
	client Client
	dbID   string
}

// NewBoard creates a Board over the given database.
func NewBoard(client Client, dbID string) *Board {
	return &Board{client: client, dbID: dbID}
}

// Push upserts one review item. Returns true when a new card was created,
// false when an existing card was refreshed.
func (b *Board) Push(ctx context.Context, item report.ReviewItem) (bool, error) {
	pageID, err := b.findCard(ctx, item.Business.Fingerprint)
	if err != nil {
		return false, err
	}

	if pageID != "" {
		req := &notionapi.PageUpdateRequest{Properties: verdictProperties(item)}
		if _, err := b.client.UpdatePage(ctx, pageID, req); err != nil {
			return false, eris.Wrapf(err, "notion: refresh card for %s", item.Business.Fingerprint)
		}
		return false, nil
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: cardProperties(item),
	}
	if _, err := b.client.CreatePage(ctx, req); err != nil {
		return false, eris.Wrapf(err, "notion: create card for %s", item.Business.Fingerprint)
	}
	return true, nil
}

// PushAll pushes every item, returning created and refreshed counts. Stops
// at the first error so a broken board does not eat the whole queue.
func (b *Board) PushAll(ctx context.Context, items []report.ReviewItem) (created, refreshed int, err error) {
	for _, item := range items {
		if ctx.Err() != nil {
			return created, refreshed, eris.Wrap(ctx.Err(), "notion: push cancelled")
		}
		isNew, err := b.Push(ctx, item)
		if err != nil {
			return created, refreshed, err
		}
		if isNew {
			created++
		} else {
			refreshed++
		}
	}
	return created, refreshed, nil
}

// Resolve flips open cards whose lead is no longer parked for review to
// resolvedStatus, returning how many cards changed. Cards without a
// fingerprint are left alone.
func (b *Board) Resolve(ctx context.Context, stillParked map[string]bool, resolvedStatus string) (int, error) {
	pages, err := QueryOpenCards(ctx, b.client, b.dbID)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, page := range pages {
		fp := richTextValue(page.Properties[propFingerprint])
		if fp == "" || stillParked[fp] {
			continue
		}

		req := &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{
				propStatus: statusProperty(resolvedStatus),
			},
		}
		if _, err := b.client.UpdatePage(ctx, string(page.ID), req); err != nil {
			return resolved, eris.Wrapf(err, "notion: resolve card for %s", fp)
		}
		zap.L().Debug("resolved review card", zap.String("fingerprint", fp))
		resolved++
	}
	return resolved, nil
}

// findCard returns the page ID of the card holding this fingerprint, or ""
// when no card exists yet.
func (b *Board) findCard(ctx context.Context, fingerprint string) (string, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propFingerprint,
			RichText: &notionapi.TextFilterCondition{
				Equals: fingerprint,
			},
		},
		PageSize: 1,
	}
	resp, err := b.client.QueryDatabase(ctx, b.dbID, req)
	if err != nil {
		return "", eris.Wrapf(err, "notion: find card for %s", fingerprint)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// cardProperties builds the full property set for a new card.
func cardProperties(item report.ReviewItem) notionapi.Properties {
	b := item.Business
	props := notionapi.Properties{
		propName: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: b.OriginalName}},
			},
		},
		propLeadID:      richTextProperty(b.ID),
		propFingerprint: richTextProperty(b.Fingerprint),
		propStatus:      statusProperty(statusNeedsReview),
	}
	if b.City != "" {
		props[propCity] = richTextProperty(b.City)
	}
	if b.Website != "" {
		props[propWebsite] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  "https://" + b.Website,
		}
	}
	for k, v := range verdictProperties(item) {
		if k != propStatus {
			props[k] = v
		}
	}
	return props
}

// verdictProperties builds the subset refreshed on every push: the gate
// verdict and the board status.
func verdictProperties(item report.ReviewItem) notionapi.Properties {
	props := notionapi.Properties{
		propStatus: statusProperty(statusNeedsReview),
	}
	if item.RuleID != "" {
		props[propGate] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: item.RuleID},
		}
	}
	if item.Reason != "" {
		props[propReason] = richTextProperty(item.Reason)
	}
	return props
}

func richTextProperty(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}

func statusProperty(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{
		Status: notionapi.Status{Name: name},
	}
}

// richTextValue extracts the plain text of a rich_text property, handling
// both the pointer form the API client unmarshals and the value form tests
// construct.
func richTextValue(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	case notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	default:
		return ""
	}
}

func joinRichText(parts []notionapi.RichText) string {
	out := ""
	for _, rt := range parts {
		if rt.PlainText != "" {
			out += rt.PlainText
			continue
		}
		if rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}
