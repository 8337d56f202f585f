package comment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sandeepkandula/sitedeploy/stack"
)

func changeSetHeader(pr int) string { return fmt.Sprintf("Stack ChangeSet (ID:%d)", pr) }
func previewHeader(pr int) string   { return fmt.Sprintf("AWS Stack Change (ID:%d)", pr) }

// PostChangeSet creates or updates the comment listing the stack changes a
// change set will apply.
func (c *Client) PostChangeSet(ctx context.Context, changes []stack.Change) error {
	header := changeSetHeader(c.pr.Number)
	body := header + "\n" + ChangeSetMarkdown(changes)

	existing, err := c.find(ctx, header)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Debug("updating change set comment", "id", existing.ID)
		return c.update(ctx, existing.ID, body)
	}
	return c.create(ctx, body)
}

// PostPreview replaces the preview deployment comment with a fresh one so it
// sits at the bottom of the conversation.
func (c *Client) PostPreview(ctx context.Context, changes []stack.Change, previewURL string, stackApplied bool) error {
	header := previewHeader(c.pr.Number)
	if err := c.DeletePreview(ctx); err != nil {
		return err
	}
	return c.create(ctx, header+"\n"+PreviewMarkdown(changes, previewURL, stackApplied))
}

// DeletePreview removes the preview deployment comment if present.
func (c *Client) DeletePreview(ctx context.Context) error {
	existing, err := c.find(ctx, previewHeader(c.pr.Number))
	if err != nil || existing == nil {
		return err
	}
	slog.Debug("deleting preview comment", "id", existing.ID)
	return c.delete(ctx, existing.ID)
}

// ChangeSetMarkdown renders the pending change-set comment body.
func ChangeSetMarkdown(changes []stack.Change) string {
	if len(changes) == 0 {
		return "\n✅ No Stack changes"
	}
	return "\nStack ChangeSet:\n\n" + changeTable(changes, "⚠️") + "\nThe above changes will be applied."
}

// PreviewMarkdown renders the preview deployment comment body.
func PreviewMarkdown(changes []stack.Change, previewURL string, stackApplied bool) string {
	var b strings.Builder
	if stackApplied {
		if len(changes) > 0 {
			b.WriteString("\nThe following Stack changes have been applied:\n\n")
			b.WriteString(changeTable(changes, "✅"))
		} else {
			b.WriteString("\n(No Stack changes)\n")
		}
	}
	fmt.Fprintf(&b, "\n🎉 Preview site deployed to: [%s](%s)\n", previewURL, previewURL)
	return b.String()
}

func changeTable(changes []stack.Change, mark string) string {
	var b strings.Builder
	b.WriteString("|  | ResourceType | LogicalResourceId | Action | Replacement |\n")
	b.WriteString("| :- | :- | :- | :- | :- |\n")
	for _, c := range changes {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", mark, c.ResourceType, c.LogicalID, c.Action, c.Replacement)
	}
	return b.String()
}
