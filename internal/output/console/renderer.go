package console

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"ufwinspector/pkg/models"
)

// Format selects how a summary is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatTSV   Format = "tsv"
)

// EmptyMessage is printed when a run found no public addresses.
const EmptyMessage = "No public IP addresses found in the logs."

var tsvHeader = []string{"IP_Address", "Domain_Name", "ISP", "Direction", "In_Count", "Out_Count", "Event_Types", "Protocols"}

// Renderer writes summaries for humans or for other tools.
type Renderer struct {
	w      io.Writer
	format Format
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, format Format) *Renderer {
	if format == "" {
		format = FormatTable
	}
	return &Renderer{w: w, format: format}
}

// Render writes summary.
func (r *Renderer) Render(summary *models.Summary) error {
	bw := bufio.NewWriter(r.w)
	var err error
	switch r.format {
	case FormatTable:
		err = renderTable(bw, summary)
	case FormatTSV:
		err = renderTSV(bw, summary)
	default:
		return fmt.Errorf("unknown output format: %s", r.format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func renderTable(w io.Writer, summary *models.Summary) error {
	if len(summary.Records()) == 0 {
		fmt.Fprintln(w, EmptyMessage)
		writeFooter(w, summary.Stats)
		return nil
	}

	withRules := false
	for _, rec := range summary.Records() {
		if len(rec.Tags) > 0 {
			withRules = true
			break
		}
	}

	for i, bucket := range summary.Buckets {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if summary.Grouped {
			fmt.Fprintf(w, "%s EVENTS\n\n", bucket.EventType)
		} else {
			fmt.Fprint(w, "UFW Log Analysis Summary\n\n")
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		header := []string{"IP Address", "Domain Name", "ISP", "Direction", "Count", "In Count", "Out Count", "Event Types", "Protocols"}
		if withRules {
			header = append(header, "Rules")
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, rec := range bucket.Records {
			row := []string{
				rec.Address,
				domainColumn(rec),
				ispColumn(rec),
				rec.Role.Direction(),
				strconv.Itoa(rec.Count),
				countColumn(rec.SourceCount, "-"),
				countColumn(rec.DestCount, "-"),
				eventTypesColumn(rec, ": ", ", "),
				listColumn(rec.Protocols, ", "),
			}
			if withRules {
				row = append(row, listColumn(rec.Tags, ", "))
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	writeFooter(w, summary.Stats)
	return nil
}

func writeFooter(w io.Writer, stats models.Stats) {
	fmt.Fprintf(w, "\nLines: %d  Events: %d  Skipped: %d  Public addresses: %d  Resolution failures: %d\n",
		stats.TotalLines, stats.ParsedEvents, stats.SkippedLines, stats.PublicAddresses, stats.ResolutionFailures)
	if stats.Canceled {
		fmt.Fprintln(w, "Run was interrupted; results are partial.")
	}
}

// renderTSV writes one header and one row per record. Grouped summaries get
// a leading Event_Type column.
func renderTSV(w io.Writer, summary *models.Summary) error {
	if len(summary.Records()) == 0 {
		fmt.Fprintln(w, EmptyMessage)
		return nil
	}

	header := tsvHeader
	if summary.Grouped {
		header = append([]string{"Event_Type"}, tsvHeader...)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, bucket := range summary.Buckets {
		for _, rec := range bucket.Records {
			row := []string{
				rec.Address,
				domainColumn(rec),
				ispColumn(rec),
				rec.Role.Direction(),
				strconv.Itoa(rec.SourceCount),
				strconv.Itoa(rec.DestCount),
				eventTypesColumn(rec, ":", ","),
				listColumn(rec.Protocols, ","),
			}
			if summary.Grouped {
				row = append([]string{string(bucket.EventType)}, row...)
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	}
	return nil
}

// domainColumn shows the address itself when no name was found.
func domainColumn(rec *models.AggregateRecord) string {
	if rec.DomainName == "" {
		return rec.Address
	}
	return rec.DomainName
}

// ispColumn shows the provider only for addresses without a domain name.
func ispColumn(rec *models.AggregateRecord) string {
	if rec.DomainName != "" {
		return "-"
	}
	if rec.ISP == "" {
		return "Unknown"
	}
	return rec.ISP
}

func countColumn(n int, zero string) string {
	if n == 0 {
		return zero
	}
	return strconv.Itoa(n)
}

func eventTypesColumn(rec *models.AggregateRecord, kv, sep string) string {
	in := joinTypes(rec.SourceEventTypes, sep)
	out := joinTypes(rec.DestEventTypes, sep)
	switch rec.Role {
	case models.RoleSource:
		return "IN" + kv + in
	case models.RoleDestination:
		return "OUT" + kv + out
	default:
		return "IN" + kv + in + sep + "OUT" + kv + out
	}
}

func joinTypes(types []models.EventType, sep string) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}

func listColumn(items []string, sep string) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items, sep)
}
