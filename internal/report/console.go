// Package report renders a reconciliation report for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/grouping"
	"github.com/alanyoungcy/walletrecon/internal/service"
)

// DefaultBundleLimit caps the bundle table; the stats cover everything.
const DefaultBundleLimit = 50

// Console writes a report as plain-text tables.
type Console struct {
	out         io.Writer
	bundleLimit int
}

// NewConsole creates a Console writing to out. bundleLimit <= 0 uses
// DefaultBundleLimit.
func NewConsole(out io.Writer, bundleLimit int) *Console {
	if bundleLimit <= 0 {
		bundleLimit = DefaultBundleLimit
	}
	return &Console{out: out, bundleLimit: bundleLimit}
}

// Render prints the header, positions, conflicts, inferred positions,
// bundles and totals.
func (c *Console) Render(r service.Report) error {
	fmt.Fprintf(c.out, "\nWallet %s (generated %s)\n", r.Wallet, r.GeneratedAt.Format(time.RFC3339))
	if failed := r.Build.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, p := range failed {
			names[i] = string(p)
		}
		fmt.Fprintf(c.out, "WARNING: built without %s\n", strings.Join(names, ", "))
	}

	if err := c.positions(r.Positions); err != nil {
		return err
	}
	if len(r.Conflicts) > 0 {
		if err := c.conflicts(r); err != nil {
			return err
		}
	}
	if len(r.Inferred) > 0 {
		if err := c.inferred(r.Inferred); err != nil {
			return err
		}
	}
	if err := c.bundles(r.Bundles); err != nil {
		return err
	}
	return c.totals(r)
}

func (c *Console) positions(positions []domain.ProtocolPosition) error {
	fmt.Fprintf(c.out, "\nPositions (%d)\n", len(positions))
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  none")
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Name", "Protocol", "Chain", "Status", "Opened", "Txs", "Size $", "PnL $")
	for _, p := range positions {
		if err := table.Append(
			p.Name,
			string(p.Protocol),
			domain.ChainName(p.Chain),
			string(p.Status),
			p.OpenedAt.Format("2006-01-02"),
			fmt.Sprintf("%d", len(p.TxIDs)),
			money(p.Metrics.SizeUSD),
			money(p.Metrics.RealizedPnLUSD),
		); err != nil {
			return fmt.Errorf("report: positions: %w", err)
		}
	}
	return table.Render()
}

func (c *Console) conflicts(r service.Report) error {
	fmt.Fprintf(c.out, "\nOwnership conflicts (%d)\n", len(r.Conflicts))
	table := tablewriter.NewWriter(c.out)
	table.Header("Tx", "Claimed by", "Owner")
	for _, cf := range r.Conflicts {
		if err := table.Append(shortHash(cf.TxID), strings.Join(cf.Claimants, ", "), cf.Owner); err != nil {
			return fmt.Errorf("report: conflicts: %w", err)
		}
	}
	return table.Render()
}

// inferred lists positions grouped from transactions no collector claimed.
func (c *Console) inferred(groups []grouping.Group) error {
	fmt.Fprintf(c.out, "\nInferred positions (%d)\n", len(groups))
	table := tablewriter.NewWriter(c.out)
	table.Header("Name", "Type", "Chain", "Status", "Txs", "Net $", "Flow")
	for _, g := range groups {
		status := string(g.Status)
		if status == "" {
			status = "-"
		}
		if err := table.Append(
			g.Name,
			string(g.Type),
			domain.ChainName(g.Chain),
			status,
			fmt.Sprintf("%d", len(g.Transactions)),
			fmt.Sprintf("%.2f", g.NetValueUSD),
			string(g.Flow),
		); err != nil {
			return fmt.Errorf("report: inferred: %w", err)
		}
	}
	return table.Render()
}

func (c *Console) bundles(v service.BundleView) error {
	fmt.Fprintf(c.out, "\nBundles (%d", len(v.Bundles))
	if v.Hidden > 0 {
		fmt.Fprintf(c.out, ", %d hidden txs", v.Hidden)
	}
	fmt.Fprintln(c.out, ")")
	if len(v.Bundles) == 0 {
		fmt.Fprintln(c.out, "  none")
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Chain", "Name", "Kind", "Txs", "Net $", "Flow")
	for i, b := range v.Bundles {
		if i == c.bundleLimit {
			fmt.Fprintf(c.out, "  ... %d older bundles not shown\n", len(v.Bundles)-c.bundleLimit)
			break
		}
		if err := table.Append(
			time.Unix(b.Primary.TimeAt, 0).UTC().Format("2006-01-02 15:04"),
			domain.ChainName(b.Primary.Chain),
			b.Name,
			string(b.Kind),
			fmt.Sprintf("%d", 1+len(b.Related)),
			fmt.Sprintf("%.2f", b.NetValueUSD),
			string(b.Flow),
		); err != nil {
			return fmt.Errorf("report: bundles: %w", err)
		}
	}
	return table.Render()
}

func (c *Console) totals(r service.Report) error {
	s := r.Bundles.Stats
	fmt.Fprintln(c.out, "\nTotals")
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Transactions", fmt.Sprintf("%d", s.Transactions)},
		{"Matched to positions", fmt.Sprintf("%d", r.Matched)},
		{"Unmatched", fmt.Sprintf("%d", r.Unmatched)},
	}
	for _, k := range domain.BundleKinds {
		rows = append(rows, []string{"Bundles: " + string(k), fmt.Sprintf("%d", s.ByKind[k])})
	}
	rows = append(rows, []string{"Net value $", fmt.Sprintf("%.2f", s.NetValueUSD)})
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("report: totals: %w", err)
		}
	}
	return table.Render()
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}
