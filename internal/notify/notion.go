// Package notify announces finished audits as pages in a Notion database.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
)

// PageCreator is the slice of the Notion API the notifier needs.
type PageCreator interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
}

// notionClient wraps the official SDK behind PageCreator.
type notionClient struct {
	client *notionapi.Client
}

func (n *notionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// NotionNotifier writes one page per completed audit.
type NotionNotifier struct {
	client     PageCreator
	databaseID string
}

// NewNotionNotifier creates a notifier for the given integration token and
// target database.
func NewNotionNotifier(token, databaseID string) *NotionNotifier {
	return &NotionNotifier{
		client:     &notionClient{client: notionapi.NewClient(notionapi.Token(token))},
		databaseID: databaseID,
	}
}

// AuditCompleted creates the completion page. The audit pipeline treats a
// failure here as non-fatal.
func (n *NotionNotifier) AuditCompleted(ctx context.Context, auditID, filename string, txCount, riskScore int) error {
	_, err := n.client.CreatePage(ctx, n.databaseID, auditPageProperties(auditID, filename, txCount, riskScore, time.Now()))
	if err != nil {
		return fmt.Errorf("notify audit %s: %w", auditID, err)
	}
	return nil
}

// auditPageProperties maps an audit summary onto the database's columns.
func auditPageProperties(auditID, filename string, txCount, riskScore int, completedAt time.Time) notionapi.Properties {
	title := filename
	if title == "" {
		title = auditID
	}
	completed := notionapi.Date(completedAt)

	return notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{Text: &notionapi.Text{Content: fmt.Sprintf("Audit: %s", title)}},
			},
		},
		"Audit ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{Text: &notionapi.Text{Content: auditID}},
			},
		},
		"Transactions": notionapi.NumberProperty{
			Number: float64(txCount),
		},
		"Risk Score": notionapi.NumberProperty{
			Number: float64(riskScore),
		},
		"Completed": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &completed},
		},
	}
}
