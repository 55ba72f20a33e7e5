package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"startup-spark/internal/models"
	"startup-spark/internal/notify"
)

const (
	SheetTeams    = "Teams"
	SheetPayments = "Payments"

	// Payment status lives in column H of the Teams sheet.
	teamStatusColumn = "H"
)

var teamHeader = []interface{}{
	"Registration ID", "Team Name", "Team Size", "Lead Name", "Lead Email", "Lead Phone",
	"Members", "Payment Status", "Amount Payable", "Registered At", "Paid At",
}

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:Z", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *Client) updateCell(ctx context.Context, sheet, a1 string, value interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!"+a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (c *Client) replaceAll(ctx context.Context, sheet string, rows [][]interface{}) error {
	_, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, sheet+"!A:Z", &sheetsv4.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err = c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// ---------- Teams ----------

// ExportRoster rewrites the Teams sheet from scratch and returns the number of teams written.
func (c *Client) ExportRoster(ctx context.Context, teams []models.Team) (int, error) {
	rows := make([][]interface{}, 0, len(teams)+1)
	rows = append(rows, teamHeader)
	for _, t := range teams {
		rows = append(rows, TeamRow(t, c.costPerMember))
	}
	if err := c.replaceAll(ctx, SheetTeams, rows); err != nil {
		return 0, fmt.Errorf("export roster: %w", err)
	}
	return len(teams), nil
}

func TeamRow(t models.Team, costPerMember int64) []interface{} {
	lead := t.Lead()
	names := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		names = append(names, fmt.Sprintf("%s <%s> %s", m.Name, m.Email, m.Phone))
	}
	status := t.PaymentStatus
	if status == "" {
		status = models.StatusPending
	}
	return []interface{}{
		t.RegistrationID,
		t.TeamName,
		t.TeamSize,
		lead.Name,
		lead.Email,
		lead.Phone,
		strings.Join(names, "; "),
		string(status),
		t.AmountPayable(costPerMember).String(),
		formatTime(&t.CreatedAt),
		formatTime(t.PaymentCompletedAt),
	}
}

// findTeamRow returns the 1-based sheet row holding registrationID, or 0.
func (c *Client) findTeamRow(ctx context.Context, registrationID string) (int, error) {
	values, err := c.readAll(ctx, SheetTeams)
	if err != nil {
		return 0, err
	}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		if get(values[i], 0) == registrationID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// UpdateTeamStatus changes the status cell of one team, appending the team
// when the roster does not have it yet.
func (c *Client) UpdateTeamStatus(ctx context.Context, t models.Team) error {
	rowNum, err := c.findTeamRow(ctx, t.RegistrationID)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		return c.appendRow(ctx, SheetTeams, TeamRow(t, c.costPerMember))
	}
	return c.updateCell(ctx, SheetTeams, fmt.Sprintf("%s%d", teamStatusColumn, rowNum), string(t.PaymentStatus))
}

// ---------- Payments ----------

func (c *Client) AppendPayment(ctx context.Context, p models.Payment) error {
	return c.appendRow(ctx, SheetPayments, PaymentRow(p))
}

func PaymentRow(p models.Payment) []interface{} {
	gatewayID := p.GatewayPaymentID
	if gatewayID == "" {
		gatewayID = p.PaymentID
	}
	return []interface{}{
		gatewayID,
		p.PaymentRequestID,
		p.Email,
		p.BuyerName,
		p.Amount.String(),
		string(p.Status),
		p.TeamID,
		formatTime(&p.CreatedAt),
	}
}

// Notify mirrors team and payment changes into the spreadsheet.
func (c *Client) Notify(ctx context.Context, ev notify.Event) error {
	switch ev.Kind {
	case notify.KindTeamRegistered, notify.KindTeamPaid:
		if ev.Team == nil {
			return nil
		}
		return c.UpdateTeamStatus(ctx, *ev.Team)
	case notify.KindPaymentReceived:
		if ev.Payment == nil {
			return nil
		}
		if err := c.AppendPayment(ctx, *ev.Payment); err != nil {
			c.log.Warn("sheets payment ledger", zap.String("payment", ev.Payment.PaymentID), zap.Error(err))
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
