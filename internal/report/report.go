// Package report renders forecast summaries as HTML email and delivers
// them over SMTP.
package report

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"sort"
	"strings"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

var reportTmpl = template.Must(template.New("report").Parse(`<html>
<head></head>
<body>
  <h1>Storm Forecast Report</h1>
{{- range .Storms}}
  <h2>{{.ID}}</h2>
  <table>
    <tr>
      <th><b>Time</b></th>
      <th><b>Wind (mph)</b></th>
      <th><b>Coordinates (Decimal Degrees)</b></th>
    </tr>
{{- range .Rows}}
    <tr>
      <td>{{.Time}}</td>
      <td>{{.WindMPH}}</td>
      <td>{{.Coordinates}}</td>
    </tr>
{{- end}}
  </table>
{{- end}}
{{- if not .Storms}}
  <p>No storms currently active.</p>
{{- end}}
</body>
</html>
`))

type reportRow struct {
	Time        string
	WindMPH     string
	Coordinates string
}

type reportStorm struct {
	ID   string
	Rows []reportRow
}

// Render produces the HTML report body from a forecast batch, one table
// per storm ordered by storm id and horizon.
func Render(results []domain.ForecastResult) (string, error) {
	byStorm := map[string][]domain.ForecastResult{}
	for _, r := range results {
		byStorm[r.StormID] = append(byStorm[r.StormID], r)
	}
	ids := make([]string, 0, len(byStorm))
	for id := range byStorm {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	storms := make([]reportStorm, 0, len(ids))
	for _, id := range ids {
		group := byStorm[id]
		sort.Slice(group, func(i, j int) bool { return group[i].HorizonHours < group[j].HorizonHours })
		rows := make([]reportRow, 0, len(group))
		for _, r := range group {
			rows = append(rows, reportRow{
				Time:        r.PredictedTime.Format("2006-01-02 15:04 MST"),
				WindMPH:     fmt.Sprintf("%.2f", r.WindSpeed*domain.MPHPerKnot),
				Coordinates: fmt.Sprintf("%.2f, %.2f", r.Lat, r.Lon),
			})
		}
		storms = append(storms, reportStorm{ID: id, Rows: rows})
	}

	var sb strings.Builder
	if err := reportTmpl.Execute(&sb, struct{ Storms []reportStorm }{storms}); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return sb.String(), nil
}

// Mailer delivers rendered reports over SMTP with STARTTLS.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	sender   string
	logger   *slog.Logger
}

// NewMailer creates an SMTP mailer.
func NewMailer(host string, port int, username, password, sender string, logger *slog.Logger) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		sender:   sender,
		logger:   logger,
	}
}

// Send mails the HTML body to the recipients.
func (m *Mailer) Send(recipients []string, subject, htmlBody string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.sender)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := smtp.SendMail(addr, auth, m.sender, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	m.logger.Info("report sent", "recipients", len(recipients))
	return nil
}
